// Package ledger maintains the longitudinal skill-gap records and the
// per-(user, role) interview progress aggregate.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/interview-engine/internal/store"
	"github.com/jonathan/interview-engine/internal/types"
)

// closingScore is the overall score a turn must reach to count toward
// closing an open gap, and the recent-confirmation mean that closes it.
const closingScore = 75

// closingWindow is how many trailing confirmations the closing mean spans.
const closingWindow = 3

// Ledger applies session results to gaps and progress. It is single-writer
// per user: only the finalize path of that user's session calls it, under
// the session lock.
type Ledger struct {
	store store.Store
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// ApplySessionResults folds a completed session into the user's gaps and
// progress. It is idempotent: confirmations are deduplicated on
// (sessionId, turnIndex) and the progress aggregate records applied session
// ids, so retries after partial failures are safe.
func (l *Ledger) ApplySessionResults(ctx context.Context, sess *types.Session) error {
	if sess.Final == nil {
		return fmt.Errorf("session %s has no final evaluation", sess.ID)
	}

	prog, err := l.loadOrInitProgress(ctx, sess.UserID, sess.TargetRole)
	if err != nil {
		return err
	}
	if prog.Applied(sess.ID.String()) {
		return nil
	}

	now := time.Now().UTC()
	for _, turn := range sess.EvaluatedTurns() {
		if err := l.applyTurn(ctx, sess, turn, now); err != nil {
			return err
		}
	}

	if err := l.applyProgress(ctx, prog, sess, now); err != nil {
		return err
	}
	return nil
}

// applyTurn updates gap records for one evaluated turn: negative evidence
// opens or confirms a gap, strong answers on a gapped skill accumulate
// toward closing it.
func (l *Ledger) applyTurn(ctx context.Context, sess *types.Session, turn types.Turn, now time.Time) error {
	ev := turn.Evaluation
	skill := turn.Question.PrimarySkill()
	if skill == "" {
		return nil
	}

	if ev.GapKind != types.GapNone && ev.GapKind.Valid() {
		gap, err := l.loadOrOpenGap(ctx, sess.UserID, skill, ev.GapKind, now)
		if err != nil {
			return err
		}
		l.confirm(gap, sess.ID, turn.Index, ev.OverallScore, now)
		if gap.Status == types.GapClosed {
			// Fresh negative evidence on a closed gap re-opens it.
			gap.Status = types.GapOpen
			gap.ClosedAt = nil
			gap.OpenedAt = now
		}
		if err := l.store.UpsertGap(ctx, gap); err != nil {
			return err
		}
	}

	if ev.OverallScore >= closingScore {
		if err := l.creditOpenGaps(ctx, sess, turn, now); err != nil {
			return err
		}
	}
	return nil
}

// creditOpenGaps appends a positive confirmation to every open gap on the
// turn's skill and closes gaps whose recent confirmations average high
// enough.
func (l *Ledger) creditOpenGaps(ctx context.Context, sess *types.Session, turn types.Turn, now time.Time) error {
	skill := turn.Question.PrimarySkill()
	gaps, err := l.store.LoadGapsByUser(ctx, sess.UserID, "")
	if err != nil {
		return err
	}
	for _, gap := range gaps {
		if gap.Status == types.GapClosed || !sameSkill(gap.Skill, skill) {
			continue
		}
		if !l.confirm(gap, sess.ID, turn.Index, turn.Evaluation.OverallScore, now) {
			continue
		}
		if readyToClose(gap) {
			gap.Status = types.GapClosed
			closedAt := now
			gap.ClosedAt = &closedAt
		}
		if err := l.store.UpsertGap(ctx, gap); err != nil {
			return err
		}
	}
	return nil
}

// readyToClose reports whether recent confirmations show the gap is
// resolved: either the last three average at or above the closing score,
// or the last two both clear it outright.
func readyToClose(gap *types.SkillGap) bool {
	if gap.RecentMean(closingWindow) >= closingScore {
		return true
	}
	n := len(gap.Confirmations)
	if n < 2 {
		return false
	}
	return gap.Confirmations[n-1].Score >= closingScore &&
		gap.Confirmations[n-2].Score >= closingScore
}

// confirm appends a confirmation unless the same (session, turn) was
// already recorded, then recomputes severity and the recommendation.
// Returns whether anything changed.
func (l *Ledger) confirm(gap *types.SkillGap, sessionID uuid.UUID, turnIndex int, score float64, now time.Time) bool {
	for _, c := range gap.Confirmations {
		if c.SessionID == sessionID && c.TurnIndex == turnIndex {
			return false
		}
	}
	gap.Confirmations = append(gap.Confirmations, types.Confirmation{
		SessionID: sessionID,
		TurnIndex: turnIndex,
		Score:     score,
		Timestamp: now,
	})
	gap.Severity = ComputeSeverity(len(gap.Confirmations), gap.MeanScore())
	gap.Recommendation = types.Recommendation{
		Topic:    gap.Skill,
		Priority: recommendationPriority(gap.Severity),
	}
	return true
}

// ComputeSeverity maps confirmation count and mean score onto the severity
// ordinal: raw = 1 + floor(n/2) - mean/40, clamped into low..critical.
// More confirmations raise severity; higher scores lower it.
func ComputeSeverity(confirmations int, meanScore float64) types.Severity {
	raw := 1 + float64(confirmations/2) - meanScore/40
	rank := int(math.Floor(raw))
	if rank > 3 {
		rank = 3
	}
	return types.SeverityFromRank(rank)
}

// recommendationPriority is monotone in severity.
func recommendationPriority(sev types.Severity) int {
	return sev.Rank() + 2 // low->2 .. critical->5
}

func (l *Ledger) loadOrOpenGap(ctx context.Context, userID, skill string, kind types.GapKind, now time.Time) (*types.SkillGap, error) {
	gap, err := l.store.LoadGap(ctx, userID, skill, kind)
	if err == nil {
		return gap, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &types.SkillGap{
		ID:       uuid.New(),
		UserID:   userID,
		Skill:    skill,
		Kind:     kind,
		Severity: types.SeverityLow,
		Status:   types.GapOpen,
		OpenedAt: now,
	}, nil
}

func (l *Ledger) loadOrInitProgress(ctx context.Context, userID, role string) (*types.InterviewProgress, error) {
	prog, err := l.store.LoadProgress(ctx, userID, role)
	if err == nil {
		return prog, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &types.InterviewProgress{
		UserID:       userID,
		TargetRole:   role,
		TopicMastery: make(map[string]float64),
	}, nil
}

// applyProgress folds the session into the aggregate and recomputes
// readiness from the updated gap picture.
func (l *Ledger) applyProgress(ctx context.Context, prog *types.InterviewProgress, sess *types.Session, now time.Time) error {
	evaluated := sess.EvaluatedTurns()

	prog.TotalSessions++
	prog.TotalQuestions += len(evaluated)
	if sess.CompletedAt != nil {
		prog.TotalMinutes += sess.CompletedAt.Sub(sess.CreatedAt).Minutes()
	}
	prog.ScoreTrends = append(prog.ScoreTrends, types.ScorePoint{
		Timestamp: now,
		Score:     sess.Final.OverallScore,
	})

	if prog.TopicMastery == nil {
		prog.TopicMastery = make(map[string]float64)
	}
	for topic, mean := range topicMeans(evaluated) {
		prev, ok := prog.TopicMastery[topic]
		if !ok {
			prev = mean
		}
		prog.TopicMastery[topic] = 0.7*prev + 0.3*mean
	}

	gaps, err := l.store.LoadGapsByUser(ctx, sess.UserID, "")
	if err != nil {
		return err
	}
	prog.Readiness = Readiness(prog.ScoreTrends, gaps, prog.TotalSessions)

	prog.MarkApplied(sess.ID.String())
	if err := l.store.UpsertProgress(ctx, prog); err != nil {
		return err
	}
	log.Printf("[ledger] applied session %s for user %s: readiness %.1f", sess.ID, sess.UserID, prog.Readiness)
	return nil
}

// WeakAreas returns the skills of the user's open gaps, most severe first.
// Used by the question selector's topic policy.
func (l *Ledger) WeakAreas(ctx context.Context, userID string) ([]string, error) {
	gaps, err := l.store.LoadGapsByUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, gap := range gaps {
		if gap.Status == types.GapClosed {
			continue
		}
		out = append(out, gap.Skill)
	}
	return out, nil
}

// Readiness aggregates recent performance and open-gap load into [0,100]:
// 50 points from the decay-weighted recent session mean, 30 from the share
// of gaps that are not open-high/critical, 20 from session count maturity.
// Holding the open-high-gap count fixed, it is monotone non-decreasing in
// recent scores.
func Readiness(trends []types.ScorePoint, gaps []*types.SkillGap, totalSessions int) float64 {
	recent := decayedRecentMean(trends)

	totalGaps := len(gaps)
	openHigh := 0
	for _, gap := range gaps {
		if gap.Status != types.GapClosed && gap.Severity.Rank() >= types.SeverityHigh.Rank() {
			openHigh++
		}
	}
	denom := totalGaps
	if denom < 1 {
		denom = 1
	}

	sessions := totalSessions
	if sessions > 10 {
		sessions = 10
	}

	r := 50*recent/100 +
		30*(1-float64(openHigh)/float64(denom)) +
		20*float64(sessions)/10
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// decayedRecentMean weights the last sessions with exponential decay, the
// newest counting most.
func decayedRecentMean(trends []types.ScorePoint) float64 {
	if len(trends) == 0 {
		return 0
	}
	const window = 5
	const decay = 0.7

	start := len(trends) - window
	if start < 0 {
		start = 0
	}
	recent := trends[start:]

	weight := 1.0
	var sum, weights float64
	for i := len(recent) - 1; i >= 0; i-- {
		sum += recent[i].Score * weight
		weights += weight
		weight *= decay
	}
	return sum / weights
}

func topicMeans(turns []types.Turn) map[string]float64 {
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

func sameSkill(a, b string) bool {
	return strings.EqualFold(a, b)
}
