package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/types"
)

// fakeCompleter scripts gateway responses.
type fakeCompleter struct {
	resp *gateway.Response
	err  error
}

func (f *fakeCompleter) Complete(_ context.Context, _ gateway.Request) (*gateway.Response, error) {
	return f.resp, f.err
}

func answeredTurn(answer string, tags ...string) types.Turn {
	if len(tags) == 0 {
		tags = []string{"Go"}
	}
	return types.Turn{
		Index:    0,
		Question: types.Question{Text: "Explain goroutines.", Topic: "concurrency", SkillTags: tags, Difficulty: 3},
		Answer:   &types.Answer{Text: answer},
	}
}

func TestEvaluate_UsesLLMResult(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{
		"overallScore": 82,
		"rubric": {"correctness": 85, "depth": 80, "clarity": 80, "structure": 78, "completeness": 84},
		"identifiedStrengths": ["clear scheduler explanation"],
		"identifiedWeaknesses": [],
		"detectedGapKind": "none",
		"feedback": "Strong answer."
	}`}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("long correct answer"), types.SessionState{CurrentTurn: 1}, 10)

	assert.False(t, result.Degraded)
	assert.Equal(t, 82.0, result.Evaluation.OverallScore)
	assert.Equal(t, types.GapNone, result.Evaluation.GapKind)
	assert.False(t, result.Evaluation.NeedsFollowUp)
}

func TestEvaluate_ClampsAndRecomputes(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{
		"overallScore": 250,
		"rubric": {"correctness": 120, "depth": -5, "clarity": 60, "structure": 60, "completeness": 60},
		"detectedGapKind": "invented-kind",
		"feedback": "x"
	}`}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("answer"), types.SessionState{}, 10)

	r := result.Evaluation.Rubric
	assert.Equal(t, 100.0, r.Correctness)
	assert.Equal(t, 0.0, r.Depth)
	// Out-of-range overall is recomputed from the clamped rubric.
	assert.InDelta(t, WeightedOverall(r), result.Evaluation.OverallScore, 0.001)
	assert.Equal(t, types.GapOther, result.Evaluation.GapKind)
}

func TestEvaluate_KeepsExplicitZeroOverall(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{
		"overallScore": 0,
		"rubric": {"correctness": 0, "depth": 20, "clarity": 30, "structure": 20, "completeness": 10},
		"detectedGapKind": "knowledge",
		"feedback": "No part of the answer was correct."
	}`}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("wrong answer"), types.SessionState{}, 10)

	// A deliberate zero is a valid in-range score, not a missing field.
	assert.Equal(t, 0.0, result.Evaluation.OverallScore)
}

func TestEvaluate_RecomputesMissingOverall(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{
		"rubric": {"correctness": 80, "depth": 80, "clarity": 80, "structure": 80, "completeness": 80},
		"detectedGapKind": "none",
		"feedback": "x"
	}`}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("answer"), types.SessionState{}, 10)
	assert.InDelta(t, 80.0, result.Evaluation.OverallScore, 0.001)
}

func TestEvaluate_FallsBackOnGatewayError(t *testing.T) {
	fake := &fakeCompleter{err: &gateway.Error{Kind: gateway.FailUnavailable, Message: "down"}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("short"), types.SessionState{}, 10)

	assert.True(t, result.Degraded)
	assert.GreaterOrEqual(t, result.Evaluation.OverallScore, 40.0)
	assert.LessOrEqual(t, result.Evaluation.OverallScore, 70.0)
}

func TestEvaluate_FallsBackOnDegradedResponse(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `{}`, Degraded: true}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("whatever"), types.SessionState{}, 10)
	assert.True(t, result.Degraded)
}

func TestEvaluate_FallsBackOnUndecodableContent(t *testing.T) {
	fake := &fakeCompleter{resp: &gateway.Response{Content: `not json`}}
	ev := New(fake)

	result := ev.Evaluate(context.Background(), answeredTurn("whatever"), types.SessionState{}, 10)
	assert.True(t, result.Degraded)

	fakeErr := &fakeCompleter{err: errors.New("boom")}
	result = New(fakeErr).Evaluate(context.Background(), answeredTurn("whatever"), types.SessionState{}, 10)
	assert.True(t, result.Degraded)
}

func TestHeuristic_ScoresStayInBand(t *testing.T) {
	answers := []string{
		"",
		"short",
		strings.Repeat("go concurrency channels mutex select ", 60),
	}
	for _, answer := range answers {
		ev := heuristicEvaluate(types.Question{SkillTags: []string{"Go"}}, types.Answer{Text: answer})
		assert.GreaterOrEqual(t, ev.OverallScore, 40.0, "answer %q", answer)
		assert.LessOrEqual(t, ev.OverallScore, 70.0, "answer %q", answer)
		for _, dim := range []float64{ev.Rubric.Correctness, ev.Rubric.Depth, ev.Rubric.Clarity, ev.Rubric.Structure, ev.Rubric.Completeness} {
			assert.GreaterOrEqual(t, dim, 40.0)
			assert.LessOrEqual(t, dim, 70.0)
		}
	}
}

func TestHeuristic_ShortAnswerIsExplanationGap(t *testing.T) {
	ev := heuristicEvaluate(types.Question{SkillTags: []string{"Go"}}, types.Answer{Text: "it just works"})
	assert.Equal(t, types.GapExplanation, ev.GapKind)
	assert.NotEmpty(t, ev.Weaknesses)
}

func TestHeuristic_NoCoverageIsKnowledgeGap(t *testing.T) {
	long := strings.Repeat("this answer talks about many unrelated things at length ", 10)
	ev := heuristicEvaluate(types.Question{SkillTags: []string{"Kubernetes"}}, types.Answer{Text: long})
	assert.Equal(t, types.GapKnowledge, ev.GapKind)
}

func TestHeuristic_CoveredSkillsScoreHigher(t *testing.T) {
	q := types.Question{SkillTags: []string{"goroutines", "channels"}}
	base := strings.Repeat("some filler words about programming in general here ", 10)

	without := heuristicEvaluate(q, types.Answer{Text: base})
	with := heuristicEvaluate(q, types.Answer{Text: base + " goroutines communicate over channels"})

	assert.Greater(t, with.OverallScore, without.OverallScore)
}

func TestFollowUpRule_Gating(t *testing.T) {
	weak := types.Evaluation{Rubric: types.Rubric{Correctness: 30, Depth: 60, Clarity: 60, Structure: 60, Completeness: 60}}

	turn := answeredTurn("x")
	applyFollowUpRule(&weak, turn, types.SessionState{CurrentTurn: 3}, 10)
	assert.True(t, weak.NeedsFollowUp)

	// Follow-ups never chain.
	turn.Question.IsFollowUp = true
	applyFollowUpRule(&weak, turn, types.SessionState{CurrentTurn: 3}, 10)
	assert.False(t, weak.NeedsFollowUp)

	// No room left in the turn budget.
	turn.Question.IsFollowUp = false
	applyFollowUpRule(&weak, turn, types.SessionState{CurrentTurn: 8}, 10)
	assert.False(t, weak.NeedsFollowUp)

	strong := types.Evaluation{Rubric: types.Rubric{Correctness: 80, Depth: 80, Clarity: 80, Structure: 80, Completeness: 80}}
	applyFollowUpRule(&strong, turn, types.SessionState{CurrentTurn: 3}, 10)
	assert.False(t, strong.NeedsFollowUp)
}

func TestWeightedOverall(t *testing.T) {
	r := types.Rubric{Correctness: 100, Depth: 100, Clarity: 100, Structure: 100, Completeness: 100}
	assert.InDelta(t, 100.0, WeightedOverall(r), 0.001)

	r = types.Rubric{Correctness: 100}
	assert.InDelta(t, 35.0, WeightedOverall(r), 0.001)
}
