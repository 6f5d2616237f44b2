// Package prompts builds the prompts sent to the LLM gateway.
//
// Build is a pure function: given the same Spec it produces byte-identical
// output. All inputs are closed, enumerated fields; there are no open-ended
// keyword arguments.
package prompts

import (
	"fmt"
	"strings"

	"github.com/jonathan/interview-engine/internal/types"
)

// Kind selects which of the five prompt shapes to build.
type Kind string

// Prompt spec kinds.
const (
	KindFirstQuestion   Kind = "firstQuestion"
	KindNextQuestion    Kind = "nextQuestion"
	KindEvaluation      Kind = "evaluation"
	KindFollowUp        Kind = "followUp"
	KindFinalEvaluation Kind = "finalEvaluation"
)

// recentTurnWindow is how many trailing turns a NextQuestion prompt carries.
const recentTurnWindow = 3

// Spec is the typed input to Build. Which fields are read depends on Kind.
type Spec struct {
	Kind          Kind
	InterviewType types.InterviewType
	TargetRole    string
	ResumeSummary string
	JDSummary     string

	// NextQuestion / FinalEvaluation
	State *types.SessionState
	Turns []types.Turn

	// NextQuestion: the topic and difficulty the selector policy chose.
	TargetTopic      string
	TargetDifficulty int

	// Evaluation / FollowUp
	Question   *types.Question
	Answer     *types.Answer
	Evaluation *types.Evaluation
}

// Prompt is the built output. Schema is empty for free-text prompts.
type Prompt struct {
	System string
	User   string
	Schema string
}

// Build constructs the prompt for the given spec.
func Build(spec Spec) (Prompt, error) {
	switch spec.Kind {
	case KindFirstQuestion:
		return buildFirstQuestion(spec), nil
	case KindNextQuestion:
		return buildNextQuestion(spec), nil
	case KindEvaluation:
		if spec.Question == nil || spec.Answer == nil {
			return Prompt{}, fmt.Errorf("evaluation spec requires question and answer")
		}
		return buildEvaluation(spec), nil
	case KindFollowUp:
		if spec.Question == nil || spec.Answer == nil || spec.Evaluation == nil {
			return Prompt{}, fmt.Errorf("follow-up spec requires parent question, answer and evaluation")
		}
		return buildFollowUp(spec), nil
	case KindFinalEvaluation:
		if spec.State == nil {
			return Prompt{}, fmt.Errorf("final evaluation spec requires session state")
		}
		return buildFinalEvaluation(spec), nil
	default:
		return Prompt{}, fmt.Errorf("unknown prompt kind: %q", spec.Kind)
	}
}

const interviewerSystem = "You are an experienced technical interviewer conducting a mock interview. " +
	"You ask one clear, self-contained question at a time, calibrated to the stated difficulty " +
	"(1 = introductory, 5 = expert). Respond only with the requested JSON object."

const evaluatorSystem = "You are a strict but fair interview evaluator. Score each rubric dimension " +
	"from 0 to 100, identify concrete strengths and weaknesses, and classify the dominant gap. " +
	"Respond only with the requested JSON object."

func buildFirstQuestion(spec Spec) Prompt {
	var sb strings.Builder

	sb.WriteString("## Interview Setup\n\n")
	fmt.Fprintf(&sb, "Interview type: %s\n", spec.InterviewType)
	fmt.Fprintf(&sb, "Target role: %s\n\n", spec.TargetRole)

	writeCandidateContext(&sb, spec.ResumeSummary, spec.JDSummary)

	sb.WriteString("## Task\n\n")
	sb.WriteString("Produce the opening question for this interview. Pick a topic central to the ")
	sb.WriteString("target role, set difficulty 3 unless the resume clearly suggests otherwise, ")
	sb.WriteString("and tag the skills the question probes.\n")

	return Prompt{System: interviewerSystem, User: sb.String(), Schema: QuestionSchema}
}

func buildNextQuestion(spec Spec) Prompt {
	var sb strings.Builder

	sb.WriteString("## Interview Setup\n\n")
	fmt.Fprintf(&sb, "Interview type: %s\n", spec.InterviewType)
	fmt.Fprintf(&sb, "Target role: %s\n\n", spec.TargetRole)

	writeCandidateContext(&sb, spec.ResumeSummary, spec.JDSummary)

	if spec.State != nil {
		sb.WriteString("## Session State\n\n")
		fmt.Fprintf(&sb, "Current turn: %d\n", spec.State.CurrentTurn)
		fmt.Fprintf(&sb, "Difficulty level: %d\n", spec.State.DifficultyLevel)
		fmt.Fprintf(&sb, "Topics covered: %s\n", joinOrNone(spec.State.TopicsCovered))
		fmt.Fprintf(&sb, "Skills probed: %s\n", joinOrNone(spec.State.SkillsProbed))
		fmt.Fprintf(&sb, "Struggling areas: %s\n", joinOrNone(spec.State.StrugglingAreas))
		fmt.Fprintf(&sb, "Strong areas: %s\n\n", joinOrNone(spec.State.StrongAreas))
	}

	turns := spec.Turns
	if len(turns) > recentTurnWindow {
		turns = turns[len(turns)-recentTurnWindow:]
	}
	if len(turns) > 0 {
		sb.WriteString("## Recent Turns\n\n")
		for _, t := range turns {
			fmt.Fprintf(&sb, "Turn %d [%s, difficulty %d]: %s\n", t.Index, t.Question.Topic, t.Question.Difficulty, t.Question.Text)
			if t.Answer != nil {
				fmt.Fprintf(&sb, "  Answer: %s\n", t.Answer.Text)
			}
			if t.Evaluation != nil {
				fmt.Fprintf(&sb, "  Score: %.0f\n", t.Evaluation.OverallScore)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Task\n\n")
	if spec.TargetTopic != "" {
		fmt.Fprintf(&sb, "Produce the next question on the topic %q at difficulty %d. ", spec.TargetTopic, spec.TargetDifficulty)
	} else {
		sb.WriteString("Produce the next question at the stated difficulty level. ")
	}
	sb.WriteString("Avoid topics already covered unless a deeper probe of a covered topic is clearly ")
	sb.WriteString("warranted by a weak answer. Prefer skills required by the job description that ")
	sb.WriteString("have not been probed yet.\n")

	return Prompt{System: interviewerSystem, User: sb.String(), Schema: QuestionSchema}
}

func buildEvaluation(spec Spec) Prompt {
	var sb strings.Builder

	sb.WriteString("## Question\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", spec.Question.Topic)
	fmt.Fprintf(&sb, "Skills: %s\n", joinOrNone(spec.Question.SkillTags))
	fmt.Fprintf(&sb, "Difficulty: %d\n", spec.Question.Difficulty)
	fmt.Fprintf(&sb, "Text: %s\n\n", spec.Question.Text)

	sb.WriteString("## Candidate Answer\n\n")
	sb.WriteString(spec.Answer.Text)
	sb.WriteString("\n\n")

	sb.WriteString("## Rubric\n\n")
	sb.WriteString("Score each dimension 0-100:\n")
	sb.WriteString("- correctness: factual and technical accuracy\n")
	sb.WriteString("- depth: goes beyond surface level, covers tradeoffs\n")
	sb.WriteString("- clarity: easy to follow, precise terminology\n")
	sb.WriteString("- structure: organized reasoning, logical flow\n")
	sb.WriteString("- completeness: addresses every part of the question\n\n")

	sb.WriteString("## Task\n\n")
	sb.WriteString("Evaluate the answer against the rubric. Classify the dominant gap as one of ")
	sb.WriteString("none, knowledge, explanation, depth, application. Set needsFollowUp when a ")
	sb.WriteString("deeper probe of the same skill would be informative.\n")

	return Prompt{System: evaluatorSystem, User: sb.String(), Schema: EvaluationSchema}
}

func buildFollowUp(spec Spec) Prompt {
	var sb strings.Builder

	sb.WriteString("## Original Question\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", spec.Question.Topic)
	fmt.Fprintf(&sb, "Skills: %s\n", joinOrNone(spec.Question.SkillTags))
	fmt.Fprintf(&sb, "Difficulty: %d\n", spec.Question.Difficulty)
	fmt.Fprintf(&sb, "Text: %s\n\n", spec.Question.Text)

	sb.WriteString("## Candidate Answer\n\n")
	sb.WriteString(spec.Answer.Text)
	sb.WriteString("\n\n")

	sb.WriteString("## Evaluation\n\n")
	fmt.Fprintf(&sb, "Overall score: %.0f\n", spec.Evaluation.OverallScore)
	fmt.Fprintf(&sb, "Weaknesses: %s\n", joinOrNone(spec.Evaluation.Weaknesses))
	fmt.Fprintf(&sb, "Feedback: %s\n\n", spec.Evaluation.Feedback)

	sb.WriteString("## Task\n\n")
	sb.WriteString("Produce a follow-up question that probes the same topic and skills more deeply, ")
	sb.WriteString("targeting the weaknesses identified above. Keep the same topic and the same ")
	sb.WriteString("difficulty as the original question.\n")

	return Prompt{System: interviewerSystem, User: sb.String(), Schema: QuestionSchema}
}

func buildFinalEvaluation(spec Spec) Prompt {
	var sb strings.Builder

	sb.WriteString("## Session Summary\n\n")
	fmt.Fprintf(&sb, "Interview type: %s\n", spec.InterviewType)
	fmt.Fprintf(&sb, "Target role: %s\n", spec.TargetRole)
	fmt.Fprintf(&sb, "Turns completed: %d\n", spec.State.CurrentTurn)
	fmt.Fprintf(&sb, "Final difficulty: %d\n", spec.State.DifficultyLevel)
	fmt.Fprintf(&sb, "Topics covered: %s\n\n", joinOrNone(spec.State.TopicsCovered))

	sb.WriteString("## Evaluated Turns\n\n")
	for _, t := range spec.Turns {
		if t.Evaluation == nil {
			continue
		}
		fmt.Fprintf(&sb, "Turn %d [%s, difficulty %d]: %s\n", t.Index, t.Question.Topic, t.Question.Difficulty, t.Question.Text)
		fmt.Fprintf(&sb, "  Score: %.0f, gap: %s\n", t.Evaluation.OverallScore, t.Evaluation.GapKind)
		fmt.Fprintf(&sb, "  Feedback: %s\n", t.Evaluation.Feedback)
	}
	sb.WriteString("\n")

	sb.WriteString("## Task\n\n")
	sb.WriteString("Produce the final interview evaluation: an overall score 0-100, per-dimension ")
	sb.WriteString("scores averaged over the session, the candidate's top strengths and weaknesses, ")
	sb.WriteString("a concrete study recommendation, and per-topic mastery deltas in [-10, 10].\n")

	return Prompt{System: evaluatorSystem, User: sb.String(), Schema: FinalEvaluationSchema}
}

func writeCandidateContext(sb *strings.Builder, resumeSummary, jdSummary string) {
	if resumeSummary == "" && jdSummary == "" {
		return
	}
	sb.WriteString("## Candidate Context\n\n")
	if resumeSummary != "" {
		fmt.Fprintf(sb, "Resume summary:\n%s\n\n", resumeSummary)
	}
	if jdSummary != "" {
		fmt.Fprintf(sb, "Job description summary:\n%s\n\n", jdSummary)
	}
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}
