package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/semitae/internal/domain"
	"github.com/xiaot623/semitae/internal/generator"
	"github.com/xiaot623/semitae/internal/policy"
	"github.com/xiaot623/semitae/internal/processor"
	"github.com/xiaot623/semitae/internal/service"
	"github.com/xiaot623/semitae/internal/workflow"
	"github.com/xiaot623/semitae/tests/helpers"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	orch := workflow.New(db, db, processor.New(policyEngine), generator.NewTemplate(), nil, workflow.DefaultPolicy())
	return NewHandler(service.New(db, orch))
}

func doJSON(t *testing.T, method, path, body string, names, values []string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if err := fn(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func createEncounter(t *testing.T, h *Handler) domain.Encounter {
	t.Helper()
	rec := doJSON(t, http.MethodPost, "/v1/encounters", `{"participant_a":"p1","participant_b":"p2","realm":"Eldaria"}`, nil, nil, h.CreateEncounter)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var enc domain.Encounter
	if err := json.Unmarshal(rec.Body.Bytes(), &enc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return enc
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *domain.ErrorBody {
	t.Helper()
	var resp domain.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error == nil {
		t.Fatalf("missing error body: %s", rec.Body.String())
	}
	return resp.Error
}

func TestCreateEncounter(t *testing.T) {
	h := newTestHandler(t)
	enc := createEncounter(t, h)
	if enc.EncounterID == "" || enc.ActiveParticipant != "p1" || enc.Version != 1 {
		t.Fatalf("unexpected encounter: %+v", enc)
	}
	if len(enc.MessageLog) != 0 {
		t.Fatalf("expected empty log, got %v", enc.MessageLog)
	}
}

func TestCreateEncounterValidation(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, http.MethodPost, "/v1/encounters", `{"participant_a":"p1"}`, nil, nil, h.CreateEncounter)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != domain.CodeInvalidArgument {
		t.Fatalf("unexpected code: %s", body.Code)
	}

	rec = doJSON(t, http.MethodPost, "/v1/encounters", `{not json`, nil, nil, h.CreateEncounter)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rec.Code)
	}
}

func TestGetEncounterNotFound(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, http.MethodGet, "/v1/encounters/nope", "", []string{"encounter_id"}, []string{"nope"}, h.GetEncounter)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != domain.CodeNotFound {
		t.Fatalf("unexpected code: %s", body.Code)
	}
}

func TestSubmitInstructionFlow(t *testing.T) {
	h := newTestHandler(t)
	enc := createEncounter(t, h)
	params := []string{"encounter_id"}
	values := []string{enc.EncounterID}
	path := "/v1/encounters/" + enc.EncounterID + "/instructions"

	rec := doJSON(t, http.MethodPost, path, `{"player_id":"p1","payload":"Strike the troll"}`, params, values, h.SubmitInstruction)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.InstructionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ActiveParticipant != "p2" || result.MessageLogLength != 1 || result.Version != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Out of turn.
	rec = doJSON(t, http.MethodPost, path, `{"player_id":"p1","payload":"Again"}`, params, values, h.SubmitInstruction)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != domain.CodeInvalidTurn {
		t.Fatalf("unexpected code: %s", body.Code)
	}

	// Illegal payload.
	rec = doJSON(t, http.MethodPost, path, `{"player_id":"p2","payload":""}`, params, values, h.SubmitInstruction)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Code != domain.CodeValidation || body.Rule != "instruction_empty" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	rec = doJSON(t, http.MethodGet, "/v1/encounters/"+enc.EncounterID, "", params, values, h.GetEncounter)
	var current domain.Encounter
	if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(current.MessageLog) != 1 || current.ActiveParticipant != "p2" {
		t.Fatalf("unexpected encounter after failures: %+v", current)
	}
}

func TestSubmitInstructionUnknownEncounter(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(t, http.MethodPost, "/v1/encounters/nope/instructions", `{"player_id":"p1","payload":"hi"}`,
		[]string{"encounter_id"}, []string{"nope"}, h.SubmitInstruction)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
