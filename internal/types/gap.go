package types

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the ordinal severity of a skill gap.
type Severity string

// Gap severities, ordered low to critical.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity onto 0..3 for ordering; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// SeverityFromRank is the inverse of Rank, clamping out-of-range values.
func SeverityFromRank(rank int) Severity {
	switch {
	case rank <= 0:
		return SeverityLow
	case rank == 1:
		return SeverityMedium
	case rank == 2:
		return SeverityHigh
	}
	return SeverityCritical
}

// GapStatus is the lifecycle state of a skill gap.
type GapStatus string

// Gap lifecycle states.
const (
	GapOpen       GapStatus = "open"
	GapInProgress GapStatus = "in-progress"
	GapClosed     GapStatus = "closed"
)

// Valid reports whether the status is a known value.
func (s GapStatus) Valid() bool {
	return s == GapOpen || s == GapInProgress || s == GapClosed
}

// Confirmation records one turn that evidenced (or counter-evidenced) a gap.
type Confirmation struct {
	SessionID uuid.UUID `json:"sessionId"`
	TurnIndex int       `json:"turnIndex"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressNote is an append-only free-form note on a gap.
type ProgressNote struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Recommendation is the derived study suggestion attached to a gap.
type Recommendation struct {
	Topic    string `json:"topic"`
	Priority int    `json:"priority"`
}

// SkillGap is the longitudinal record that a user has repeatedly
// underperformed on a skill. There is one per (user, skill, kind).
type SkillGap struct {
	ID             uuid.UUID      `json:"id"`
	UserID         string         `json:"userId"`
	Skill          string         `json:"skill"`
	Kind           GapKind        `json:"gapKind"`
	Severity       Severity       `json:"severity"`
	Status         GapStatus      `json:"status"`
	OpenedAt       time.Time      `json:"openedAt"`
	ClosedAt       *time.Time     `json:"closedAt,omitempty"`
	Confirmations  []Confirmation `json:"confirmations"`
	ProgressNotes  []ProgressNote `json:"progressNotes"`
	Recommendation Recommendation `json:"recommendation"`
}

// MeanScore returns the mean confirmation score, or 0 with no confirmations.
func (g *SkillGap) MeanScore() float64 {
	if len(g.Confirmations) == 0 {
		return 0
	}
	var sum float64
	for _, c := range g.Confirmations {
		sum += c.Score
	}
	return sum / float64(len(g.Confirmations))
}

// RecentMean returns the mean of the last n confirmation scores.
func (g *SkillGap) RecentMean(n int) float64 {
	if len(g.Confirmations) == 0 || n <= 0 {
		return 0
	}
	start := len(g.Confirmations) - n
	if start < 0 {
		start = 0
	}
	var sum float64
	recent := g.Confirmations[start:]
	for _, c := range recent {
		sum += c.Score
	}
	return sum / float64(len(recent))
}
