package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return engine
}

func input(instruction string) Input {
	return Input{
		EncounterID:       "e1",
		Participants:      []string{"p1", "p2"},
		ActiveParticipant: "p1",
		Turn:              1,
		PlayerID:          "p1",
		Instruction:       instruction,
	}
}

func TestEvaluateAllowsLegalInstruction(t *testing.T) {
	engine := newDefaultEngine(t)

	decision, err := engine.Evaluate(context.Background(), input("Greet the other player warmly"))
	require.NoError(t, err)
	assert.Empty(t, decision.Violations)
	assert.Equal(t, "Befriend", decision.Classification)
	assert.False(t, decision.ExtraTurn)
}

func TestEvaluateClassification(t *testing.T) {
	engine := newDefaultEngine(t)

	cases := map[string]string{
		"Strike the troll with my axe":    "Attack",
		"Try to convince them to stand down": "Persuade",
		"Offer a trade of two gems":       "Negotiate",
		"Sit quietly and ponder the stars": "Ponder",
		"Walk to the river":               "Act",
	}
	for instruction, want := range cases {
		decision, err := engine.Evaluate(context.Background(), input(instruction))
		require.NoError(t, err)
		assert.Equal(t, want, decision.Classification, instruction)
	}
}

func TestEvaluateViolations(t *testing.T) {
	engine := newDefaultEngine(t)

	decision, err := engine.Evaluate(context.Background(), input("   "))
	require.NoError(t, err)
	assert.Equal(t, []string{"instruction_empty"}, decision.Violations)

	decision, err = engine.Evaluate(context.Background(), input(strings.Repeat("a", 501)))
	require.NoError(t, err)
	assert.Equal(t, []string{"instruction_too_long"}, decision.Violations)

	in := input("")
	in.PlayerID = "p3"
	decision, err = engine.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"instruction_empty", "player_not_participant"}, decision.Violations)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := newDefaultEngine(t)

	first, err := engine.Evaluate(context.Background(), input("Attack and then negotiate"))
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), input("Attack and then negotiate"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "Attack", first.Classification)
}

const extraTurnPolicy = `
package encounter.instruction

violations contains "no_shouting" if {
	upper(input.instruction) == input.instruction
}

decision := {
	"violations": sort(violations),
	"classification": "Haste",
	"extra_turn": contains(lower(input.instruction), "haste"),
}
`

func TestNewEngineFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rego")
	require.NoError(t, os.WriteFile(path, []byte(extraTurnPolicy), 0o600))

	engine, err := NewEngineFromFile(context.Background(), path)
	require.NoError(t, err)

	decision, err := engine.Evaluate(context.Background(), input("cast haste on myself"))
	require.NoError(t, err)
	assert.True(t, decision.ExtraTurn)
	assert.Equal(t, "Haste", decision.Classification)
	assert.Empty(t, decision.Violations)

	decision, err = engine.Evaluate(context.Background(), input("HELLO"))
	require.NoError(t, err)
	assert.Equal(t, []string{"no_shouting"}, decision.Violations)
}

func TestNewEngineFromFileDefaultsAndErrors(t *testing.T) {
	engine, err := NewEngineFromFile(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, engine)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), "package broken\n\nx := ")
	assert.Error(t, err)
}
