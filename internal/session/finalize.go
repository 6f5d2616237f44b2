package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/prompts"
	"github.com/jonathan/interview-engine/internal/types"
)

// finalize writes the session's final evaluation, marks it completed, and
// applies the results to the user's gap ledger. Finalizing an already
// completed session re-attempts the ledger application (idempotent) and
// returns the stored summary.
func (o *Orchestrator) finalize(ctx context.Context, sess *types.Session) (*types.FinalEvaluation, bool, error) {
	if sess.Status == types.StatusCompleted && sess.Final != nil {
		if err := o.ledger.ApplySessionResults(ctx, sess); err != nil {
			log.Printf("[session] ledger retry failed for %s: %v", sess.ID, err)
		}
		return sess.Final, false, nil
	}

	// A question asked but never answered carries no signal; drop it from
	// the permanent record.
	sess.Turns = trimTrailingPending(sess.Turns)

	final, degraded := o.buildFinal(ctx, sess)

	completedAt := o.now()
	sess.Final = final
	sess.Status = types.StatusCompleted
	sess.CompletedAt = &completedAt

	if err := o.store.SaveSession(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("failed to persist final evaluation: %w", err)
	}

	if err := o.ledger.ApplySessionResults(ctx, sess); err != nil {
		// The session itself is durable; EndSession on a completed session
		// re-attempts the ledger application.
		log.Printf("[session] ledger application failed for %s: %v", sess.ID, err)
	}
	return final, degraded, nil
}

// buildFinal asks the LLM for the session verdict and falls back to a
// deterministic aggregation of the turn evaluations when the provider is
// degraded or its output cannot be used.
func (o *Orchestrator) buildFinal(ctx context.Context, sess *types.Session) (*types.FinalEvaluation, bool) {
	prompt, err := prompts.Build(prompts.Spec{
		Kind:          prompts.KindFinalEvaluation,
		InterviewType: sess.InterviewType,
		TargetRole:    sess.TargetRole,
		State:         &sess.State,
		Turns:         sess.Turns,
	})
	if err != nil {
		log.Printf("[session] final prompt build failed for %s: %v", sess.ID, err)
		return aggregateFinal(sess), true
	}

	resp, err := o.gw.Complete(ctx, gateway.Request{
		SystemPrompt:   prompt.System,
		UserPrompt:     prompt.User,
		ResponseSchema: prompt.Schema,
	})
	if err != nil || resp.Degraded {
		if err != nil {
			log.Printf("[session] final evaluation call failed for %s: %v", sess.ID, err)
		}
		return aggregateFinal(sess), true
	}

	var final types.FinalEvaluation
	if err := json.Unmarshal([]byte(resp.Content), &final); err != nil {
		log.Printf("[session] final evaluation decode failed for %s: %v", sess.ID, err)
		return aggregateFinal(sess), true
	}
	if final.OverallScore < 0 || final.OverallScore > 100 {
		final.OverallScore = aggregateFinal(sess).OverallScore
	}
	return &final, false
}

// aggregateFinal derives the final evaluation directly from the turn
// evaluations: overall and per-dimension means, skills ranked by mean
// score, and mastery deltas proportional to each topic's distance from the
// neutral score.
func aggregateFinal(sess *types.Session) *types.FinalEvaluation {
	evaluated := sess.EvaluatedTurns()

	final := &types.FinalEvaluation{
		Dimensions:         map[string]float64{},
		TopicMasteryDeltas: map[string]float64{},
		Recommendation:     "Continue practicing across the session's topics.",
	}
	if len(evaluated) == 0 {
		return final
	}

	var overall, correctness, depth, clarity, structure, completeness float64
	for _, t := range evaluated {
		ev := t.Evaluation
		overall += ev.OverallScore
		correctness += ev.Rubric.Correctness
		depth += ev.Rubric.Depth
		clarity += ev.Rubric.Clarity
		structure += ev.Rubric.Structure
		completeness += ev.Rubric.Completeness
	}
	n := float64(len(evaluated))
	final.OverallScore = overall / n
	final.Dimensions = map[string]float64{
		"correctness":  correctness / n,
		"depth":        depth / n,
		"clarity":      clarity / n,
		"structure":    structure / n,
		"completeness": completeness / n,
	}

	ranked := rankSkills(evaluated)
	for i, s := range ranked {
		if i >= 3 || s.mean < 70 {
			break
		}
		final.Strengths = append(final.Strengths, s.skill)
	}
	for i := len(ranked) - 1; i >= 0 && len(final.Weaknesses) < 3; i-- {
		if ranked[i].mean >= 70 {
			break
		}
		final.Weaknesses = append(final.Weaknesses, ranked[i].skill)
	}
	if len(final.Weaknesses) > 0 {
		final.Recommendation = fmt.Sprintf("Focus further practice on %s.", final.Weaknesses[0])
	}

	for topic, mean := range turnTopicMeans(evaluated) {
		delta := (mean - 50) / 5
		if delta > 10 {
			delta = 10
		}
		if delta < -10 {
			delta = -10
		}
		final.TopicMasteryDeltas[topic] = delta
	}
	return final
}

type skillMean struct {
	skill string
	mean  float64
}

// rankSkills returns per-skill mean scores, best first.
func rankSkills(turns []types.Turn) []skillMean {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, t := range turns {
		skill := t.Question.PrimarySkill()
		if skill == "" {
			continue
		}
		sums[skill] += t.Evaluation.OverallScore
		counts[skill]++
	}

	out := make([]skillMean, 0, len(sums))
	for skill, sum := range sums {
		out = append(out, skillMean{skill: skill, mean: sum / float64(counts[skill])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].mean != out[j].mean {
			return out[i].mean > out[j].mean
		}
		return out[i].skill < out[j].skill
	})
	return out
}

func turnTopicMeans(turns []types.Turn) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, t := range turns {
		topic := t.Question.Topic
		if topic == "" {
			continue
		}
		sums[topic] += t.Evaluation.OverallScore
		counts[topic]++
	}
	out := make(map[string]float64, len(sums))
	for topic, sum := range sums {
		out[topic] = sum / float64(counts[topic])
	}
	return out
}
