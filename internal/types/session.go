// Package types defines the data model shared by the interview engine services.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InterviewType identifies the kind of mock interview being run.
type InterviewType string

// Supported interview types.
const (
	InterviewTechnical    InterviewType = "technical"
	InterviewBehavioral   InterviewType = "behavioral"
	InterviewSystemDesign InterviewType = "systemDesign"
	InterviewMixed        InterviewType = "mixed"
)

// Valid reports whether the interview type is one of the supported values.
func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTechnical, InterviewBehavioral, InterviewSystemDesign, InterviewMixed:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
// Transitions are monotonic: created -> inProgress -> (completed | abandoned).
type SessionStatus string

// Session lifecycle states.
const (
	StatusCreated    SessionStatus = "created"
	StatusInProgress SessionStatus = "inProgress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// SessionState is the adaptive context the selector and evaluator read.
type SessionState struct {
	CurrentTurn        int      `json:"currentTurn"`
	TopicsCovered      []string `json:"topicsCovered"`
	SkillsProbed       []string `json:"skillsProbed"`
	DifficultyLevel    int      `json:"difficultyLevel"`
	ConfidenceEstimate float64  `json:"confidenceEstimate"`
	StrugglingAreas    []string `json:"strugglingAreas"`
	StrongAreas        []string `json:"strongAreas"`
}

// Covered reports whether a topic has already been asked about this session.
func (s *SessionState) Covered(topic string) bool {
	return containsFold(s.TopicsCovered, topic)
}

// MarkCovered records a topic and its skill tags into the state sets.
func (s *SessionState) MarkCovered(topic string, skillTags []string) {
	if topic != "" && !containsFold(s.TopicsCovered, topic) {
		s.TopicsCovered = append(s.TopicsCovered, topic)
	}
	for _, tag := range skillTags {
		if tag != "" && !containsFold(s.SkillsProbed, tag) {
			s.SkillsProbed = append(s.SkillsProbed, tag)
		}
	}
}

// Session is one interview run. It exclusively owns its turns.
type Session struct {
	ID            uuid.UUID        `json:"id"`
	Version       int64            `json:"version"`
	UserID        string           `json:"userId"`
	InterviewType InterviewType    `json:"interviewType"`
	TargetRole    string           `json:"targetRole"`
	ResumeRef     string           `json:"resumeRef,omitempty"`
	JDRef         string           `json:"jdRef,omitempty"`
	ResumeSummary string           `json:"resumeSummary,omitempty"`
	JDSummary     string           `json:"jdSummary,omitempty"`
	Status        SessionStatus    `json:"status"`
	State         SessionState     `json:"state"`
	Turns         []Turn           `json:"turns"`
	Final         *FinalEvaluation `json:"finalEvaluation,omitempty"`
	MaxTurns      int              `json:"maxTurns"`
	MaxDuration   time.Duration    `json:"maxDuration"`
	CreatedAt     time.Time        `json:"createdAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// PendingTurn returns the single turn awaiting an answer, or nil.
// The invariant that at most one turn is pending is maintained by the
// orchestrator; this scans from the tail because a pending turn is always last.
func (s *Session) PendingTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	last := &s.Turns[len(s.Turns)-1]
	if last.Answer == nil {
		return last
	}
	return nil
}

// EvaluatedTurns returns the turns that carry an evaluation, in order.
func (s *Session) EvaluatedTurns() []Turn {
	out := make([]Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Evaluation != nil {
			out = append(out, t)
		}
	}
	return out
}

// FollowUpCount returns how many follow-up turns reference the given parent
// and the total number of follow-up turns in the session.
func (s *Session) FollowUpCount(parentIndex int) (perParent, total int) {
	for _, t := range s.Turns {
		if !t.Question.IsFollowUp {
			continue
		}
		total++
		if t.Question.ParentIndex != nil && *t.Question.ParentIndex == parentIndex {
			perParent++
		}
	}
	return perParent, total
}

// Validate checks the structural invariants a session must satisfy at rest.
func (s *Session) Validate() error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("session id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("session userId is required")
	}
	if !s.InterviewType.Valid() {
		return fmt.Errorf("invalid interview type: %q", s.InterviewType)
	}
	pending := 0
	for i, t := range s.Turns {
		if t.Index != i {
			return fmt.Errorf("turn %d has index %d", i, t.Index)
		}
		if t.Answer == nil {
			pending++
		}
		if (t.Answer == nil) != (t.Evaluation == nil) {
			return fmt.Errorf("turn %d: evaluation must be present iff answer is present", i)
		}
	}
	if pending > 1 {
		return fmt.Errorf("session has %d pending turns, at most one allowed", pending)
	}
	if s.Status == StatusCompleted {
		if s.Final == nil {
			return fmt.Errorf("completed session missing final evaluation")
		}
		if len(s.EvaluatedTurns()) == 0 {
			return fmt.Errorf("completed session has no evaluated turns")
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
