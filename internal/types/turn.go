package types

import (
	"fmt"
	"time"
)

// GapKind classifies why an answer fell short.
type GapKind string

// Gap kinds detected by the evaluator.
const (
	GapNone        GapKind = "none"
	GapKnowledge   GapKind = "knowledge"
	GapExplanation GapKind = "explanation"
	GapDepth       GapKind = "depth"
	GapApplication GapKind = "application"
	GapOther       GapKind = "other"
)

// Valid reports whether the gap kind is a known value.
func (k GapKind) Valid() bool {
	switch k {
	case GapNone, GapKnowledge, GapExplanation, GapDepth, GapApplication, GapOther:
		return true
	}
	return false
}

// Question is what the selector produced for a turn.
type Question struct {
	Text        string   `json:"text"`
	Topic       string   `json:"topic"`
	SkillTags   []string `json:"skillTags"`
	Difficulty  int      `json:"difficulty"`
	IsFollowUp  bool     `json:"isFollowUp"`
	ParentIndex *int     `json:"parentIndex,omitempty"`
}

// PrimarySkill returns the first skill tag, falling back to the topic.
func (q *Question) PrimarySkill() string {
	if len(q.SkillTags) > 0 && q.SkillTags[0] != "" {
		return q.SkillTags[0]
	}
	return q.Topic
}

// Validate checks a question's structural requirements.
func (q *Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("question text is required")
	}
	if q.Difficulty < 1 || q.Difficulty > 5 {
		return fmt.Errorf("question difficulty %d out of range [1,5]", q.Difficulty)
	}
	if q.IsFollowUp && q.ParentIndex == nil {
		return fmt.Errorf("follow-up question missing parentIndex")
	}
	return nil
}

// Answer is the candidate's response to a question.
type Answer struct {
	Text        string `json:"text"`
	TimeSpentMs int64  `json:"timeSpentMs"`
}

// Rubric holds the per-dimension scores, each in [0,100].
type Rubric struct {
	Correctness  float64 `json:"correctness"`
	Depth        float64 `json:"depth"`
	Clarity      float64 `json:"clarity"`
	Structure    float64 `json:"structure"`
	Completeness float64 `json:"completeness"`
}

// Min returns the lowest rubric dimension score.
func (r Rubric) Min() float64 {
	m := r.Correctness
	for _, v := range []float64{r.Depth, r.Clarity, r.Structure, r.Completeness} {
		if v < m {
			m = v
		}
	}
	return m
}

// Evaluation is the scored assessment of one answered turn.
type Evaluation struct {
	OverallScore  float64  `json:"overallScore"`
	Rubric        Rubric   `json:"rubric"`
	Strengths     []string `json:"identifiedStrengths"`
	Weaknesses    []string `json:"identifiedWeaknesses"`
	GapKind       GapKind  `json:"detectedGapKind"`
	NeedsFollowUp bool     `json:"needsFollowUp"`
	Feedback      string   `json:"feedback"`
}

// Turn is a single (question, answer, evaluation) triple inside a session.
// A turn is pending while Answer is nil and evaluated once both Answer and
// Evaluation are set; the two are always set together.
type Turn struct {
	Index      int         `json:"index"`
	Question   Question    `json:"question"`
	AskedAt    time.Time   `json:"askedAt"`
	Answer     *Answer     `json:"answer,omitempty"`
	AnsweredAt *time.Time  `json:"answeredAt,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// Evaluated reports whether the turn carries an answer and its evaluation.
func (t *Turn) Evaluated() bool {
	return t.Answer != nil && t.Evaluation != nil
}

// FinalEvaluation is the session-level verdict written at finalization.
type FinalEvaluation struct {
	OverallScore       float64            `json:"overallScore"`
	Dimensions         map[string]float64 `json:"perDimensionScores"`
	Strengths          []string           `json:"strengths"`
	Weaknesses         []string           `json:"weaknesses"`
	Recommendation     string             `json:"recommendation"`
	TopicMasteryDeltas map[string]float64 `json:"topicMasteryDeltas"`
}
