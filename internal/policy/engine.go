// Package policy judges instructions against Rego rules.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Query is the rule every policy module must define.
const Query = "data.encounter.instruction.decision"

// Engine is the OPA policy engine. A prepared query is safe for concurrent use.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Decision is the verdict of the rules for one instruction.
type Decision struct {
	Violations     []string `json:"violations"`
	Classification string   `json:"classification"`
	ExtraTurn      bool     `json:"extra_turn"`
}

// Input is what the rules see.
type Input struct {
	EncounterID       string   `json:"encounter_id"`
	Participants      []string `json:"participants"`
	ActiveParticipant string   `json:"active_participant"`
	Realm             string   `json:"realm"`
	Turn              int      `json:"turn"`
	PlayerID          string   `json:"player_id"`
	Instruction       string   `json:"instruction"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module("instruction.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy module at path, or the default rules
// when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate runs the rules against input.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(toRegoInput(input)))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy produced no decision")
	}

	raw, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision: %w", err)
	}
	var decision Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, fmt.Errorf("unexpected decision shape: %w", err)
	}
	return &decision, nil
}

func toRegoInput(in Input) map[string]interface{} {
	participants := make([]interface{}, len(in.Participants))
	for i, p := range in.Participants {
		participants[i] = p
	}
	return map[string]interface{}{
		"encounter_id":       in.EncounterID,
		"participants":       participants,
		"active_participant": in.ActiveParticipant,
		"realm":              in.Realm,
		"turn":               in.Turn,
		"player_id":          in.PlayerID,
		"instruction":        in.Instruction,
	}
}

// DefaultPolicy is the default rule set.
const DefaultPolicy = `
package encounter.instruction

max_instruction_length := 500

is_participant if {
	some p in input.participants
	p == input.player_id
}

violations contains "instruction_empty" if {
	trim_space(input.instruction) == ""
}

violations contains "instruction_too_long" if {
	count(input.instruction) > max_instruction_length
}

violations contains "player_not_participant" if {
	not is_participant
}

# Ordered so that the first matching class wins.
classes := [
	{"name": "Attack", "keywords": ["attack", "strike", "hit", "fight", "stab"]},
	{"name": "Threaten", "keywords": ["threaten", "warn"]},
	{"name": "Intimidate", "keywords": ["intimidate", "scare", "frighten"]},
	{"name": "Persuade", "keywords": ["persuade", "convince"]},
	{"name": "Negotiate", "keywords": ["negotiate", "bargain", "trade", "deal", "offer"]},
	{"name": "Ally", "keywords": ["ally", "partner", "join forces"]},
	{"name": "Befriend", "keywords": ["befriend", "greet", "friend", "welcome"]},
	{"name": "Ponder", "keywords": ["ponder", "wonder", "think", "consider"]},
]

matches := [c.name |
	some c in classes
	some k in c.keywords
	contains(lower(input.instruction), k)
]

default classification := "Act"

classification := matches[0] if count(matches) > 0

default extra_turn := false

decision := {
	"violations": sort(violations),
	"classification": classification,
	"extra_turn": extra_turn,
}
`
