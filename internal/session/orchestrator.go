// Package session orchestrates one interview session: the state machine
// from start through adaptive question/answer turns to finalization.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/interview-engine/internal/config"
	"github.com/jonathan/interview-engine/internal/evaluator"
	"github.com/jonathan/interview-engine/internal/gateway"
	"github.com/jonathan/interview-engine/internal/ledger"
	"github.com/jonathan/interview-engine/internal/selector"
	"github.com/jonathan/interview-engine/internal/store"
	"github.com/jonathan/interview-engine/internal/types"
)

// Operation deadlines.
const (
	startDeadline  = 35 * time.Second
	answerDeadline = 35 * time.Second
	endDeadline    = 10 * time.Second
)

// Mastery exit: this many consecutive evaluated turns at or above the bar
// while difficulty sits at the ceiling.
const (
	masteryStreak = 3
	masteryBar    = 85
	maxDifficulty = 5
)

const initialDifficulty = 3

// Orchestrator drives sessions. All mutating operations run under the
// per-session lock; reads return consistent snapshots.
type Orchestrator struct {
	store     store.Store
	selector  *selector.Selector
	evaluator *evaluator.Evaluator
	ledger    *ledger.Ledger
	gw        gateway.Completer
	cfg       *config.Config

	locks *sessionLocks
	// inflight maps session id -> cancel for the operation currently
	// holding that session's lock; EndSession uses it to cut short
	// in-flight selection or evaluation.
	inflight sync.Map

	now func() time.Time
}

// New wires the orchestrator.
func New(st store.Store, sel *selector.Selector, ev *evaluator.Evaluator, led *ledger.Ledger, gw gateway.Completer, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		selector:  sel,
		evaluator: ev,
		ledger:    led,
		gw:        gw,
		cfg:       cfg,
		locks:     newSessionLocks(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartParams are the inputs to StartSession. Resume and JD summaries are
// immutable snapshots: later edits to the originals never affect the
// session.
type StartParams struct {
	UserID             string
	InterviewType      types.InterviewType
	TargetRole         string
	ResumeRef          string
	JDRef              string
	ResumeSummary      string
	JDSummary          string
	MaxTurns           int
	MaxDurationMinutes int
}

// StartResult is what StartSession hands back to the transport layer.
type StartResult struct {
	Session  *types.Session
	Question types.Question
	Degraded bool
}

// ResultType tags the three SubmitAnswer outcomes.
type ResultType string

// SubmitAnswer outcome tags.
const (
	ResultNextQuestion ResultType = "nextQuestion"
	ResultFollowUp     ResultType = "followUp"
	ResultComplete     ResultType = "complete"
)

// AnswerResult is the outcome of one SubmitAnswer call.
type AnswerResult struct {
	Type         ResultType
	Evaluation   *types.Evaluation
	NextQuestion *types.Question
	Summary      *types.FinalEvaluation
	Session      *types.Session
	Degraded     bool
}

// StartSession creates a session, selects the first question, persists the
// pending turn, and returns it.
func (o *Orchestrator) StartSession(ctx context.Context, p StartParams) (*StartResult, error) {
	if err := validateStart(&p, o.cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, startDeadline)
	defer cancel()

	now := o.now()
	sess := &types.Session{
		ID:            uuid.New(),
		UserID:        p.UserID,
		InterviewType: p.InterviewType,
		TargetRole:    p.TargetRole,
		ResumeRef:     p.ResumeRef,
		JDRef:         p.JDRef,
		ResumeSummary: p.ResumeSummary,
		JDSummary:     p.JDSummary,
		Status:        types.StatusCreated,
		State: types.SessionState{
			DifficultyLevel:    initialDifficulty,
			ConfidenceEstimate: 0.5,
		},
		MaxTurns:    p.MaxTurns,
		MaxDuration: time.Duration(p.MaxDurationMinutes) * time.Minute,
		CreatedAt:   now,
	}

	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	o.locks.lock(sess.ID)
	defer o.locks.unlock(sess.ID)
	o.trackInflight(sess.ID, cancel)
	defer o.inflight.Delete(sess.ID)

	weak, err := o.ledger.WeakAreas(ctx, sess.UserID)
	if err != nil {
		log.Printf("[session] weak areas unavailable for %s: %v", sess.UserID, err)
	}

	sel, err := o.selector.Select(ctx, selector.Input{Session: sess, WeakAreas: weak})
	if err != nil {
		return nil, o.mapDeadline(ctx, "startSession", err)
	}

	o.appendPending(sess, sel.Question)
	sess.Status = types.StatusInProgress
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist first question: %w", err)
	}

	return &StartResult{Session: sess, Question: sel.Question, Degraded: sel.Degraded}, nil
}

// SubmitAnswer attaches the answer to the pending turn, evaluates it, and
// advances the session: follow-up, next main question, or finalization.
//
// turnIndex, when set, names the turn the answer targets. A resubmit that
// names an already-evaluated turn with the identical text replays the
// prior outcome instead of consuming a new turn; naming any other
// non-pending turn is a state conflict. Without an index the answer goes
// to the pending turn, except on a completed session where an identical
// resubmit of the final answer replays the completion. A submit that
// arrives while another mutation holds the session lock fails with a
// state conflict rather than queueing behind it.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, id uuid.UUID, answer types.Answer, turnIndex *int) (*AnswerResult, error) {
	if answer.Text == "" {
		return nil, &ErrValidation{Message: "answer text is required"}
	}

	if !o.locks.tryLock(id) {
		return nil, &ErrStateConflict{Message: "another operation on this session is in flight"}
	}
	defer o.locks.unlock(id)

	ctx, cancel := context.WithTimeout(ctx, answerDeadline)
	defer cancel()
	o.trackInflight(id, cancel)
	defer o.inflight.Delete(id)

	sess, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Replay first so that re-submitting the session's final answer is
	// idempotent even after the session completed.
	if replay := o.replayResult(sess, answer, turnIndex); replay != nil {
		return replay, nil
	}
	if sess.Status.Terminal() {
		return nil, &ErrStateConflict{Message: fmt.Sprintf("session is %s", sess.Status)}
	}
	if sess.Status == types.StatusCreated {
		return nil, &ErrStateConflict{Message: "session has no question yet"}
	}

	pending := sess.PendingTurn()
	if pending == nil {
		return nil, &ErrStateConflict{Message: "no question is awaiting an answer"}
	}
	if turnIndex != nil && *turnIndex != pending.Index {
		return nil, &ErrStateConflict{Message: fmt.Sprintf("turn %d is not awaiting an answer", *turnIndex)}
	}

	answeredAt := o.now()
	pending.Answer = &answer
	pending.AnsweredAt = &answeredAt

	evalRes := o.evaluator.Evaluate(ctx, *pending, sess.State, sess.MaxTurns)
	pending.Evaluation = &evalRes.Evaluation
	o.applyEvaluationToState(sess, pending)

	result, err := o.advance(ctx, sess, pending, evalRes.Degraded)
	if err != nil {
		// Nothing was persisted; the pending turn in the store is
		// unchanged and the caller may retry.
		return nil, o.mapDeadline(ctx, "submitAnswer", err)
	}
	return result, nil
}

// advance decides the branch after an evaluation and persists the step.
func (o *Orchestrator) advance(ctx context.Context, sess *types.Session, turn *types.Turn, degraded bool) (*AnswerResult, error) {
	ev := turn.Evaluation

	if ev.NeedsFollowUp && o.followUpBudgetLeft(sess, turn) {
		sel, err := o.selector.Select(ctx, selector.Input{
			Session:    sess,
			FollowUpOf: turn,
		})
		if err != nil {
			return nil, err
		}
		o.appendPending(sess, sel.Question)
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return nil, err
		}
		return &AnswerResult{
			Type:         ResultFollowUp,
			Evaluation:   ev,
			NextQuestion: &sess.Turns[len(sess.Turns)-1].Question,
			Session:      sess,
			Degraded:     degraded || sel.Degraded,
		}, nil
	}

	if o.shouldTerminate(sess) {
		final, finDegraded, err := o.finalize(ctx, sess)
		if err != nil {
			return nil, err
		}
		return &AnswerResult{
			Type:       ResultComplete,
			Evaluation: ev,
			Summary:    final,
			Session:    sess,
			Degraded:   degraded || finDegraded,
		}, nil
	}

	weak, err := o.ledger.WeakAreas(ctx, sess.UserID)
	if err != nil {
		log.Printf("[session] weak areas unavailable for %s: %v", sess.UserID, err)
	}
	sel, err := o.selector.Select(ctx, selector.Input{Session: sess, WeakAreas: weak})
	if err != nil {
		return nil, err
	}
	o.appendPending(sess, sel.Question)
	if err := o.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return &AnswerResult{
		Type:         ResultNextQuestion,
		Evaluation:   ev,
		NextQuestion: &sess.Turns[len(sess.Turns)-1].Question,
		Session:      sess,
		Degraded:     degraded || sel.Degraded,
	}, nil
}

// EndResult is the outcome of EndSession. Degraded reports that the
// summary came from the deterministic aggregation instead of the LLM.
type EndResult struct {
	Summary  *types.FinalEvaluation
	Session  *types.Session
	Degraded bool
}

// EndSession terminates the session early. Any in-flight selection or
// evaluation for the session is cancelled first. Ending an already
// completed session is a no-op returning the stored summary.
func (o *Orchestrator) EndSession(ctx context.Context, id uuid.UUID) (*EndResult, error) {
	if cancel, ok := o.inflight.Load(id); ok {
		cancel.(context.CancelFunc)()
	}

	o.locks.lock(id)
	defer o.locks.unlock(id)

	ctx, cancel := context.WithTimeout(ctx, endDeadline)
	defer cancel()

	sess, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case types.StatusCompleted:
		// Re-apply is idempotent; it covers a crash between the session
		// save and the ledger update.
		if err := o.ledger.ApplySessionResults(ctx, sess); err != nil {
			log.Printf("[session] ledger retry failed for %s: %v", sess.ID, err)
		}
		return &EndResult{Summary: sess.Final, Session: sess}, nil
	case types.StatusAbandoned:
		return &EndResult{Session: sess}, nil
	}

	if len(sess.EvaluatedTurns()) == 0 {
		// Nothing to evaluate; a session needs at least one evaluated
		// turn to complete, so it is abandoned instead.
		sess.Turns = trimTrailingPending(sess.Turns)
		sess.Status = types.StatusAbandoned
		completedAt := o.now()
		sess.CompletedAt = &completedAt
		if err := o.store.SaveSession(ctx, sess); err != nil {
			return nil, err
		}
		return &EndResult{Session: sess}, nil
	}

	final, degraded, err := o.finalize(ctx, sess)
	if err != nil {
		return nil, o.mapDeadline(ctx, "endSession", err)
	}
	return &EndResult{Summary: final, Session: sess, Degraded: degraded}, nil
}

// GetSession returns a consistent snapshot for reads. No partial turn is
// ever visible because session saves are atomic.
func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	return o.load(ctx, id)
}

// --- helpers ---

func (o *Orchestrator) load(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	sess, err := o.store.LoadSession(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, &ErrSessionNotFound{ID: id}
		}
		return nil, err
	}
	return sess, nil
}

// replayResult detects an idempotent re-submit and reconstructs the prior
// outcome without consuming a turn. With a turn index the resubmit
// provably targets that turn; without one it is only unambiguous after
// completion, since mid-session the identical text could just as well be
// the candidate's answer to the pending question.
func (o *Orchestrator) replayResult(sess *types.Session, answer types.Answer, turnIndex *int) *AnswerResult {
	var target *types.Turn
	switch {
	case turnIndex != nil:
		if *turnIndex < 0 || *turnIndex >= len(sess.Turns) {
			return nil
		}
		target = &sess.Turns[*turnIndex]
	case sess.Status == types.StatusCompleted:
		for i := len(sess.Turns) - 1; i >= 0; i-- {
			if sess.Turns[i].Evaluated() {
				target = &sess.Turns[i]
				break
			}
		}
	}
	if target == nil || !target.Evaluated() || target.Answer.Text != answer.Text {
		return nil
	}

	result := &AnswerResult{Evaluation: target.Evaluation, Session: sess}
	if next := target.Index + 1; next < len(sess.Turns) {
		q := &sess.Turns[next].Question
		result.NextQuestion = q
		if q.IsFollowUp {
			result.Type = ResultFollowUp
		} else {
			result.Type = ResultNextQuestion
		}
		return result
	}
	if sess.Status == types.StatusCompleted {
		result.Type = ResultComplete
		result.Summary = sess.Final
		return result
	}
	return nil
}

func (o *Orchestrator) appendPending(sess *types.Session, q types.Question) {
	sess.Turns = append(sess.Turns, types.Turn{
		Index:    len(sess.Turns),
		Question: q,
		AskedAt:  o.now(),
	})
	sess.State.MarkCovered(q.Topic, q.SkillTags)
}

// applyEvaluationToState folds an evaluation into the adaptive state:
// turn counter, difficulty (main turns only), confidence estimate, and the
// struggling/strong area sets.
func (o *Orchestrator) applyEvaluationToState(sess *types.Session, turn *types.Turn) {
	ev := turn.Evaluation
	sess.State.CurrentTurn++

	if !turn.Question.IsFollowUp {
		sess.State.DifficultyLevel = selector.AdjustDifficulty(sess.State.DifficultyLevel, ev.OverallScore)
	}

	sess.State.ConfidenceEstimate = 0.7*sess.State.ConfidenceEstimate + 0.3*(ev.OverallScore/100)

	skill := turn.Question.PrimarySkill()
	switch {
	case ev.OverallScore < 50:
		addUnique(&sess.State.StrugglingAreas, skill)
	case ev.OverallScore >= 80:
		addUnique(&sess.State.StrongAreas, skill)
	}
}

func (o *Orchestrator) followUpBudgetLeft(sess *types.Session, turn *types.Turn) bool {
	perParent, total := sess.FollowUpCount(turn.Index)
	if perParent >= o.cfg.FollowUpPerParent {
		return false
	}
	return total < o.cfg.FollowUpSessionBudget(sess.MaxTurns)
}

// shouldTerminate checks the termination conditions: turn budget, session
// duration, and the mastery exit.
func (o *Orchestrator) shouldTerminate(sess *types.Session) bool {
	if sess.State.CurrentTurn >= sess.MaxTurns {
		return true
	}
	if o.now().Sub(sess.CreatedAt) >= sess.MaxDuration {
		return true
	}
	return o.masteryExit(sess)
}

func (o *Orchestrator) masteryExit(sess *types.Session) bool {
	if sess.State.DifficultyLevel < maxDifficulty {
		return false
	}
	evaluated := sess.EvaluatedTurns()
	if len(evaluated) < masteryStreak {
		return false
	}
	for _, t := range evaluated[len(evaluated)-masteryStreak:] {
		if t.Evaluation.OverallScore < masteryBar {
			return false
		}
	}
	return true
}

func (o *Orchestrator) trackInflight(id uuid.UUID, cancel context.CancelFunc) {
	o.inflight.Store(id, cancel)
}

// mapDeadline converts context expiry into the operation-level deadline
// error; other failures pass through for the transport layer to map.
func (o *Orchestrator) mapDeadline(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return &ErrDeadline{Op: op}
	}
	return err
}

func validateStart(p *StartParams, cfg *config.Config) error {
	if p.UserID == "" {
		return &ErrValidation{Message: "userId is required"}
	}
	if !p.InterviewType.Valid() {
		return &ErrValidation{Message: fmt.Sprintf("unknown interview type %q", p.InterviewType)}
	}
	if p.TargetRole == "" {
		return &ErrValidation{Message: "targetRole is required"}
	}
	if p.MaxTurns < 0 || p.MaxDurationMinutes < 0 {
		return &ErrValidation{Message: "maxTurns and maxDurationMinutes must be non-negative"}
	}
	if p.MaxTurns == 0 {
		p.MaxTurns = cfg.DefaultMaxTurns
	}
	if p.MaxDurationMinutes == 0 {
		p.MaxDurationMinutes = cfg.DefaultMaxDurationMinutes
	}
	return nil
}

func addUnique(list *[]string, s string) {
	if s == "" {
		return
	}
	for _, v := range *list {
		if v == s {
			return
		}
	}
	*list = append(*list, s)
}

func trimTrailingPending(turns []types.Turn) []types.Turn {
	if n := len(turns); n > 0 && turns[n-1].Answer == nil {
		return turns[:n-1]
	}
	return turns
}
