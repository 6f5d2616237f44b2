// Package selector chooses the next interview question: topic and
// difficulty come from a deterministic policy, the question text from the
// LLM, with a built-in template bank covering degraded mode.
package selector

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/prompts"
	"github.com/jonathan/interview-engine/internal/types"
)

// Difficulty policy thresholds.
const (
	raiseDifficultyAt = 80
	lowerDifficultyAt = 40
	minDifficulty     = 1
	maxDifficulty     = 5
)

// Selector produces questions. It does not mutate session state; the
// orchestrator folds the returned question back into the session.
type Selector struct {
	gw gateway.Completer
}

// New creates a selector over the given gateway.
func New(gw gateway.Completer) *Selector {
	return &Selector{gw: gw}
}

// Input is a read-only snapshot of everything the policy considers.
type Input struct {
	Session   *types.Session
	WeakAreas []string // open-gap skills from the ledger, strongest first

	// FollowUpOf, when set, requests a deeper probe of that turn instead
	// of a new main question.
	FollowUpOf *types.Turn
}

// Output is the selected question plus degraded-mode metadata. Degraded is
// observable by the caller but never persisted on the question itself.
type Output struct {
	Question types.Question
	Degraded bool
}

// AdjustDifficulty applies the post-evaluation difficulty policy for a
// non-follow-up turn.
func AdjustDifficulty(current int, overallScore float64) int {
	switch {
	case overallScore >= raiseDifficultyAt && current < maxDifficulty:
		return current + 1
	case overallScore <= lowerDifficultyAt && current > minDifficulty:
		return current - 1
	}
	return current
}

// Select produces the next question for the session.
func (s *Selector) Select(ctx context.Context, in Input) (Output, error) {
	if in.FollowUpOf != nil {
		return s.selectFollowUp(ctx, in)
	}
	if len(in.Session.Turns) == 0 {
		return s.selectFirst(ctx, in)
	}
	return s.selectNext(ctx, in)
}

func (s *Selector) selectFirst(ctx context.Context, in Input) (Output, error) {
	sess := in.Session
	prompt, err := prompts.Build(prompts.Spec{
		Kind:          prompts.KindFirstQuestion,
		InterviewType: sess.InterviewType,
		TargetRole:    sess.TargetRole,
		ResumeSummary: sess.ResumeSummary,
		JDSummary:     sess.JDSummary,
	})
	if err != nil {
		return Output{}, err
	}

	topic := ChooseTopic(&sess.State, sess, in.WeakAreas)
	return s.complete(ctx, prompt, topic, sess.State.DifficultyLevel, nil, sess.InterviewType)
}

func (s *Selector) selectNext(ctx context.Context, in Input) (Output, error) {
	sess := in.Session
	topic := ChooseTopic(&sess.State, sess, in.WeakAreas)
	prompt, err := prompts.Build(prompts.Spec{
		Kind:             prompts.KindNextQuestion,
		InterviewType:    sess.InterviewType,
		TargetRole:       sess.TargetRole,
		ResumeSummary:    sess.ResumeSummary,
		JDSummary:        sess.JDSummary,
		State:            &sess.State,
		Turns:            sess.Turns,
		TargetTopic:      topic,
		TargetDifficulty: sess.State.DifficultyLevel,
	})
	if err != nil {
		return Output{}, err
	}
	return s.complete(ctx, prompt, topic, sess.State.DifficultyLevel, nil, sess.InterviewType)
}

// selectFollowUp keeps the parent's topic and difficulty and asks the LLM
// to deepen the same skill.
func (s *Selector) selectFollowUp(ctx context.Context, in Input) (Output, error) {
	parent := in.FollowUpOf
	prompt, err := prompts.Build(prompts.Spec{
		Kind:       prompts.KindFollowUp,
		Question:   &parent.Question,
		Answer:     parent.Answer,
		Evaluation: parent.Evaluation,
	})
	if err != nil {
		return Output{}, err
	}

	parentIndex := parent.Index
	out, err := s.complete(ctx, prompt, parent.Question.Topic, parent.Question.Difficulty, &parentIndex, in.Session.InterviewType)
	if err != nil {
		return Output{}, err
	}
	out.Question.SkillTags = mergeTags(parent.Question.SkillTags, out.Question.SkillTags)
	return out, nil
}

// complete runs the gateway call and normalizes the result. Topic and
// difficulty always come from the policy, never from the LLM.
func (s *Selector) complete(ctx context.Context, prompt prompts.Prompt, topic string, difficulty int, parentIndex *int, it types.InterviewType) (Output, error) {
	resp, err := s.gw.Complete(ctx, gateway.Request{
		SystemPrompt:   prompt.System,
		UserPrompt:     prompt.User,
		ResponseSchema: prompt.Schema,
	})
	if err != nil {
		var gerr *gateway.Error
		if errors.As(err, &gerr) && gerr.Kind == gateway.FailMalformed {
			log.Printf("[selector] malformed LLM output, using question bank: %v", err)
			return bankOutput(topic, difficulty, parentIndex, it), nil
		}
		return Output{}, err
	}
	if resp.Degraded {
		return bankOutput(topic, difficulty, parentIndex, it), nil
	}

	var q types.Question
	if err := json.Unmarshal([]byte(resp.Content), &q); err != nil {
		log.Printf("[selector] cannot decode question, using question bank: %v", err)
		return bankOutput(topic, difficulty, parentIndex, it), nil
	}

	q.Topic = topic
	q.Difficulty = difficulty
	q.IsFollowUp = parentIndex != nil
	q.ParentIndex = parentIndex
	if len(q.SkillTags) == 0 {
		q.SkillTags = []string{topic}
	}
	return Output{Question: q}, nil
}

func bankOutput(topic string, difficulty int, parentIndex *int, it types.InterviewType) Output {
	q := BankQuestion(topic, difficulty, it)
	q.IsFollowUp = parentIndex != nil
	q.ParentIndex = parentIndex
	return Output{Question: q, Degraded: true}
}

// ChooseTopic applies the topic preference order: an uncovered skill in the
// JD/resume intersection, then an uncovered ledger weak area, then any
// uncovered JD-required skill, then a resume skill, then a generic topic
// for the interview type. The resume fallback rotates by turn index so
// repeated sessions do not fixate on one skill.
func ChooseTopic(state *types.SessionState, sess *types.Session, weakAreas []string) string {
	resumeSkills := ExtractSkills(sess.ResumeSummary)
	jdSkills := ExtractSkills(sess.JDSummary)

	for _, skill := range intersect(jdSkills, resumeSkills) {
		if !state.Covered(skill) {
			return skill
		}
	}
	for _, skill := range weakAreas {
		if skill != "" && !state.Covered(skill) {
			return skill
		}
	}
	for _, skill := range jdSkills {
		if !state.Covered(skill) {
			return skill
		}
	}
	if len(resumeSkills) > 0 {
		return resumeSkills[state.CurrentTurn%len(resumeSkills)]
	}
	return genericTopic(sess.InterviewType)
}

// ExtractSkills pulls a deterministic skill list out of a free-text
// resume/JD summary: comma-, semicolon- or newline-separated phrases, with
// long prose lines skipped.
func ExtractSkills(summary string) []string {
	if summary == "" {
		return nil
	}
	fields := strings.FieldsFunc(summary, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '•'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool)
	for _, f := range fields {
		skill := strings.TrimSpace(strings.Trim(f, ".:- "))
		if skill == "" || len(skill) > 40 || len(strings.Fields(skill)) > 4 {
			continue
		}
		key := strings.ToLower(skill)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, skill)
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = true
	}
	var out []string
	for _, s := range a {
		if set[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

func mergeTags(parent, child []string) []string {
	out := append([]string{}, parent...)
	seen := make(map[string]bool, len(parent))
	for _, t := range parent {
		seen[strings.ToLower(t)] = true
	}
	for _, t := range child {
		if !seen[strings.ToLower(t)] {
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	return out
}

func genericTopic(it types.InterviewType) string {
	switch it {
	case types.InterviewBehavioral:
		return "teamwork and conflict resolution"
	case types.InterviewSystemDesign:
		return "system design fundamentals"
	case types.InterviewMixed:
		return "problem solving"
	}
	return "data structures and algorithms"
}
