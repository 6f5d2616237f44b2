package types

import "time"

// ScorePoint is one entry of the chronological score trend.
type ScorePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// InterviewProgress aggregates performance across sessions for one
// (user, targetRole) pair. It is updated only by session finalization.
type InterviewProgress struct {
	UserID         string             `json:"userId"`
	TargetRole     string             `json:"targetRole"`
	TotalSessions  int                `json:"totalSessions"`
	TotalQuestions int                `json:"totalQuestions"`
	TotalMinutes   float64            `json:"totalMinutes"`
	ScoreTrends    []ScorePoint       `json:"scoreTrends"`
	TopicMastery   map[string]float64 `json:"topicMastery"`
	Readiness      float64            `json:"readiness"`
	AppliedSession map[string]bool    `json:"appliedSessions"`
}

// Applied reports whether a session's results were already folded in.
// Finalization retries use this as the dedup key.
func (p *InterviewProgress) Applied(sessionID string) bool {
	return p.AppliedSession[sessionID]
}

// MarkApplied records that a session's results were folded in.
func (p *InterviewProgress) MarkApplied(sessionID string) {
	if p.AppliedSession == nil {
		p.AppliedSession = make(map[string]bool)
	}
	p.AppliedSession[sessionID] = true
}
