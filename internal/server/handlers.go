package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/interview-engine/internal/session"
	"github.com/jonathan/interview-engine/internal/store"
	"github.com/jonathan/interview-engine/internal/types"
)

// ---------------------------------------------------------------------
// Session Handlers
// ---------------------------------------------------------------------

type StartSessionRequest struct {
	UserID             string `json:"userId" validate:"required"`
	InterviewType      string `json:"interviewType" validate:"required"`
	TargetRole         string `json:"targetRole" validate:"required"`
	ResumeRef          string `json:"resumeRef"`
	JDRef              string `json:"jdRef"`
	ResumeSummary      string `json:"resumeSummary"`
	JDSummary          string `json:"jdSummary"`
	MaxTurns           int    `json:"maxTurns" validate:"gte=0,lte=50"`
	MaxDurationMinutes int    `json:"maxDurationMinutes" validate:"gte=0,lte=240"`
}

type StartSessionResponse struct {
	SessionID string             `json:"sessionId"`
	Status    string             `json:"status"`
	Question  types.Question     `json:"question"`
	State     types.SessionState `json:"state"`
	Degraded  bool               `json:"degraded,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: err.Error()})
		return
	}

	result, err := s.orchestrator.StartSession(r.Context(), session.StartParams{
		UserID:             req.UserID,
		InterviewType:      types.InterviewType(req.InterviewType),
		TargetRole:         req.TargetRole,
		ResumeRef:          req.ResumeRef,
		JDRef:              req.JDRef,
		ResumeSummary:      req.ResumeSummary,
		JDSummary:          req.JDSummary,
		MaxTurns:           req.MaxTurns,
		MaxDurationMinutes: req.MaxDurationMinutes,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, StartSessionResponse{
		SessionID: result.Session.ID.String(),
		Status:    string(result.Session.Status),
		Question:  result.Question,
		State:     result.Session.State,
		Degraded:  result.Degraded,
	})
}

type SubmitAnswerRequest struct {
	Text        string `json:"text" validate:"required"`
	TimeSpentMs int64  `json:"timeSpentMs" validate:"gte=0"`
	// TurnIndex names the turn this answer targets. Retried requests set
	// it so an already-processed submit replays instead of answering the
	// next question.
	TurnIndex *int `json:"turnIndex,omitempty" validate:"omitempty,gte=0"`
}

type SubmitAnswerResponse struct {
	Type         string                 `json:"type"`
	Evaluation   *types.Evaluation      `json:"evaluation"`
	NextQuestion *types.Question        `json:"nextQuestion,omitempty"`
	Summary      *types.FinalEvaluation `json:"summary,omitempty"`
	State        types.SessionState     `json:"state"`
	Degraded     bool                   `json:"degraded,omitempty"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid session ID"})
		return
	}

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid request body"})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: err.Error()})
		return
	}

	result, err := s.orchestrator.SubmitAnswer(r.Context(), id, types.Answer{
		Text:        req.Text,
		TimeSpentMs: req.TimeSpentMs,
	}, req.TurnIndex)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, SubmitAnswerResponse{
		Type:         string(result.Type),
		Evaluation:   result.Evaluation,
		NextQuestion: result.NextQuestion,
		Summary:      result.Summary,
		State:        result.Session.State,
		Degraded:     result.Degraded,
	})
}

type EndSessionResponse struct {
	SessionID string                 `json:"sessionId"`
	Status    string                 `json:"status"`
	Summary   *types.FinalEvaluation `json:"summary,omitempty"`
	Degraded  bool                   `json:"degraded,omitempty"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid session ID"})
		return
	}

	result, err := s.orchestrator.EndSession(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, EndSessionResponse{
		SessionID: result.Session.ID.String(),
		Status:    string(result.Session.Status),
		Summary:   result.Summary,
		Degraded:  result.Degraded,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid session ID"})
		return
	}

	sess, err := s.orchestrator.GetSession(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, sess)
}

// ---------------------------------------------------------------------
// Skill Gap Handlers
// ---------------------------------------------------------------------

type GapStats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
	ByKind     map[string]int `json:"byKind"`
}

type ListGapsResponse struct {
	Gaps  []*types.SkillGap `json:"gaps"`
	Stats GapStats          `json:"stats"`
}

func (s *Server) handleListGaps(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	status := types.GapStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.GapOpen, types.GapInProgress, types.GapClosed:
	default:
		s.errorResponse(w, &session.ErrValidation{Message: fmt.Sprintf("unknown gap status %q", status)})
		return
	}

	gaps, err := s.store.LoadGapsByUser(r.Context(), userID, status)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	stats := GapStats{
		Total:      len(gaps),
		BySeverity: make(map[string]int),
		ByKind:     make(map[string]int),
	}
	for _, gap := range gaps {
		stats.BySeverity[string(gap.Severity)]++
		stats.ByKind[string(gap.Kind)]++
	}

	if gaps == nil {
		gaps = []*types.SkillGap{}
	}
	s.jsonResponse(w, http.StatusOK, ListGapsResponse{Gaps: gaps, Stats: stats})
}

type PatchGapRequest struct {
	Status *string `json:"status,omitempty"`
	Note   *string `json:"note,omitempty"`
}

func (s *Server) handlePatchGap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid gap ID"})
		return
	}

	var req PatchGapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, &session.ErrValidation{Message: "invalid request body"})
		return
	}
	if req.Status == nil && req.Note == nil {
		s.errorResponse(w, &session.ErrValidation{Message: "nothing to update"})
		return
	}

	gap, err := s.store.LoadGapByID(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	now := time.Now().UTC()
	if req.Status != nil {
		status := types.GapStatus(*req.Status)
		switch status {
		case types.GapOpen, types.GapInProgress:
			gap.Status = status
			gap.ClosedAt = nil
		case types.GapClosed:
			gap.Status = status
			closedAt := now
			gap.ClosedAt = &closedAt
		default:
			s.errorResponse(w, &session.ErrValidation{Message: fmt.Sprintf("unknown gap status %q", *req.Status)})
			return
		}
	}
	if req.Note != nil {
		if *req.Note == "" {
			s.errorResponse(w, &session.ErrValidation{Message: "note must not be empty"})
			return
		}
		gap.ProgressNotes = append(gap.ProgressNotes, types.ProgressNote{
			Timestamp: now,
			Note:      *req.Note,
		})
	}

	if err := s.store.UpsertGap(r.Context(), gap); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, gap)
}

// ---------------------------------------------------------------------
// Progress Handlers
// ---------------------------------------------------------------------

type ProgressResponse struct {
	HasProgress bool                     `json:"hasProgress"`
	Progress    *types.InterviewProgress `json:"progress,omitempty"`
}

// handleGetProgress returns the longitudinal progress for (user, role).
// A user with no recorded sessions yet is not an error: the response says
// so with hasProgress false.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("uid")
	role := r.PathValue("role")

	prog, err := s.store.LoadProgress(r.Context(), userID, role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.jsonResponse(w, http.StatusOK, ProgressResponse{HasProgress: false})
			return
		}
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ProgressResponse{HasProgress: true, Progress: prog})
}
