// Package evaluator scores answered turns along the fixed rubric, using the
// LLM when available and a deterministic heuristic when it is not.
package evaluator

import (
	"context"
	"encoding/json"
	"log"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/prompts"
	"github.com/jonathan/interview-engine/internal/types"
)

// Overall-score weights per rubric dimension.
const (
	weightCorrectness  = 0.35
	weightDepth        = 0.2
	weightClarity      = 0.15
	weightStructure    = 0.1
	weightCompleteness = 0.2
)

// followUpScoreBar is the rubric score below which a follow-up is warranted.
const followUpScoreBar = 55

// Evaluator scores answers. It is stateless; the session snapshot comes in
// as arguments and updates go back out as return values.
type Evaluator struct {
	gw gateway.Completer
}

// New creates an evaluator over the given gateway.
func New(gw gateway.Completer) *Evaluator {
	return &Evaluator{gw: gw}
}

// Result carries an evaluation plus whether it came from the degraded path.
type Result struct {
	Evaluation types.Evaluation
	Degraded   bool
}

// Evaluate scores one answered turn. It never fails outright: when the LLM
// is unreachable or returns garbage it falls back to the heuristic
// evaluator, so every answered turn always gets an evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, turn types.Turn, state types.SessionState, maxTurns int) Result {
	prompt, err := prompts.Build(prompts.Spec{
		Kind:     prompts.KindEvaluation,
		Question: &turn.Question,
		Answer:   turn.Answer,
	})
	if err != nil {
		log.Printf("[evaluator] prompt build failed, using heuristic: %v", err)
		return e.fallback(turn, state, maxTurns)
	}

	resp, err := e.gw.Complete(ctx, gateway.Request{
		SystemPrompt:   prompt.System,
		UserPrompt:     prompt.User,
		ResponseSchema: prompt.Schema,
	})
	if err != nil {
		log.Printf("[evaluator] gateway call failed, using heuristic: %v", err)
		return e.fallback(turn, state, maxTurns)
	}
	if resp.Degraded {
		return e.fallback(turn, state, maxTurns)
	}

	// overallScore decodes through a pointer so that an explicit 0 from
	// the LLM is distinguishable from the field being absent.
	var raw struct {
		types.Evaluation
		OverallScore *float64 `json:"overallScore"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		log.Printf("[evaluator] cannot decode evaluation, using heuristic: %v", err)
		return e.fallback(turn, state, maxTurns)
	}

	ev := raw.Evaluation
	postProcess(&ev, raw.OverallScore, turn, state, maxTurns)
	return Result{Evaluation: ev}
}

func (e *Evaluator) fallback(turn types.Turn, state types.SessionState, maxTurns int) Result {
	ev := heuristicEvaluate(turn.Question, *turn.Answer)
	applyFollowUpRule(&ev, turn, state, maxTurns)
	return Result{Evaluation: ev, Degraded: true}
}

// postProcess clamps LLM scores into range, recomputes the overall score
// when the LLM's value is absent or out of range, and applies the
// follow-up gating rule.
func postProcess(ev *types.Evaluation, overall *float64, turn types.Turn, state types.SessionState, maxTurns int) {
	ev.Rubric.Correctness = clamp(ev.Rubric.Correctness, 0, 100)
	ev.Rubric.Depth = clamp(ev.Rubric.Depth, 0, 100)
	ev.Rubric.Clarity = clamp(ev.Rubric.Clarity, 0, 100)
	ev.Rubric.Structure = clamp(ev.Rubric.Structure, 0, 100)
	ev.Rubric.Completeness = clamp(ev.Rubric.Completeness, 0, 100)

	if overall == nil || *overall < 0 || *overall > 100 {
		ev.OverallScore = WeightedOverall(ev.Rubric)
	} else {
		ev.OverallScore = *overall
	}

	if !ev.GapKind.Valid() {
		ev.GapKind = types.GapOther
	}

	applyFollowUpRule(ev, turn, state, maxTurns)
}

// applyFollowUpRule sets NeedsFollowUp per the engine policy: some rubric
// dimension is weak, the turn is not itself a follow-up, and enough turn
// budget remains for both the follow-up and its evaluation.
func applyFollowUpRule(ev *types.Evaluation, turn types.Turn, state types.SessionState, maxTurns int) {
	ev.NeedsFollowUp = ev.Rubric.Min() < followUpScoreBar &&
		!turn.Question.IsFollowUp &&
		state.CurrentTurn < maxTurns-2
}

// WeightedOverall composes the overall score from the rubric dimensions.
func WeightedOverall(r types.Rubric) float64 {
	return r.Correctness*weightCorrectness +
		r.Depth*weightDepth +
		r.Clarity*weightClarity +
		r.Structure*weightStructure +
		r.Completeness*weightCompleteness
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
