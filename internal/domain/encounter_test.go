package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEncounter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	enc, err := NewEncounter("e1", " p1 ", "p2", "Eldaria", now)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"p1", "p2"}, enc.Participants)
	assert.Equal(t, "p1", enc.ActiveParticipant)
	assert.Empty(t, enc.MessageLog)
	assert.NotNil(t, enc.MessageLog)
	assert.Equal(t, int64(1), enc.Version)
	assert.Equal(t, now, enc.CreatedAt)
	assert.NoError(t, enc.Validate())
}

func TestNewEncounterRejectsBadParticipants(t *testing.T) {
	cases := []struct {
		name string
		a, b string
	}{
		{"missing first", "", "p2"},
		{"missing second", "p1", "  "},
		{"same participant", "p1", "p1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEncounter("e1", tc.a, tc.b, "", time.Now())
			require.Error(t, err)
			assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		})
	}
}

func TestEncounterApply(t *testing.T) {
	enc, err := NewEncounter("e1", "p1", "p2", "", time.Now())
	require.NoError(t, err)

	delta := &Delta{EncounterID: "e1", ActingParticipant: "p1", NextActiveParticipant: "p2", Turn: 1}
	next, err := enc.Apply(delta, "p1 waves")
	require.NoError(t, err)

	assert.Equal(t, "p2", next.ActiveParticipant)
	assert.Equal(t, []string{"p1 waves"}, next.MessageLog)
	assert.Equal(t, enc.Version, next.Version)

	// The source record is untouched.
	assert.Equal(t, "p1", enc.ActiveParticipant)
	assert.Empty(t, enc.MessageLog)
}

func TestEncounterApplyRejectsInvalidDelta(t *testing.T) {
	enc, err := NewEncounter("e1", "p1", "p2", "", time.Now())
	require.NoError(t, err)

	_, err = enc.Apply(&Delta{EncounterID: "e1", NextActiveParticipant: "p3"}, "msg")
	assert.Error(t, err)

	_, err = enc.Apply(&Delta{EncounterID: "other", NextActiveParticipant: "p2"}, "msg")
	assert.Error(t, err)

	_, err = enc.Apply(&Delta{EncounterID: "e1", NextActiveParticipant: "p2"}, "  ")
	assert.Error(t, err)

	_, err = enc.Apply(nil, "msg")
	assert.Error(t, err)
}

func TestEncounterCloneDoesNotAlias(t *testing.T) {
	enc := &Encounter{EncounterID: "e1", MessageLog: []string{"a"}}
	c := enc.Clone()
	c.MessageLog[0] = "changed"
	assert.Equal(t, "a", enc.MessageLog[0])
}

func TestOtherParticipant(t *testing.T) {
	enc := &Encounter{Participants: [2]string{"p1", "p2"}}
	assert.Equal(t, "p2", enc.OtherParticipant("p1"))
	assert.Equal(t, "p1", enc.OtherParticipant("p2"))
	assert.True(t, enc.HasParticipant("p1"))
	assert.False(t, enc.HasParticipant("p3"))
	assert.False(t, enc.HasParticipant(""))
}

func TestErrorCodesAndSentinels(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", ConflictError("e1", 3))
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeConflict, CodeOf(wrapped))
	assert.True(t, IsTerminal(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.False(t, IsTerminal(GenerationError("bad", nil)))

	verr := ValidationError("instruction_empty", []string{"instruction_empty", "instruction_too_long"})
	body := ToErrorBody(fmt.Errorf("process: %w", verr))
	assert.Equal(t, CodeValidation, body.Code)
	assert.Equal(t, "instruction_empty", body.Rule)
	assert.Len(t, body.Violations, 2)

	assert.Nil(t, ToErrorBody(nil))
	assert.Equal(t, CodeInternal, ToErrorBody(errors.New("x")).Code)
}
