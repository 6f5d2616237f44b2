package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/interview-engine/internal/store"
	"github.com/jonathan/interview-engine/internal/types"
)

func sessionWithTurns(userID string, turns ...types.Turn) *types.Session {
	now := time.Now().UTC()
	completed := now.Add(20 * time.Minute)
	return &types.Session{
		ID:            uuid.New(),
		UserID:        userID,
		InterviewType: types.InterviewTechnical,
		TargetRole:    "Backend Engineer",
		Status:        types.StatusCompleted,
		Turns:         turns,
		Final:         &types.FinalEvaluation{OverallScore: 60},
		CreatedAt:     now,
		CompletedAt:   &completed,
	}
}

func gapTurn(index int, skill string, score float64, kind types.GapKind) types.Turn {
	return types.Turn{
		Index:    index,
		Question: types.Question{Text: "q", Topic: skill, SkillTags: []string{skill}, Difficulty: 3},
		Answer:   &types.Answer{Text: "a"},
		Evaluation: &types.Evaluation{
			OverallScore: score,
			GapKind:      kind,
		},
	}
}

func TestComputeSeverity(t *testing.T) {
	// raw = 1 + floor(n/2) - mean/40
	assert.Equal(t, types.SeverityLow, ComputeSeverity(1, 80))      // 1 + 0 - 2 = -1
	assert.Equal(t, types.SeverityLow, ComputeSeverity(1, 40))      // 1 + 0 - 1 = 0
	assert.Equal(t, types.SeverityMedium, ComputeSeverity(2, 40))   // 1 + 1 - 1 = 1
	assert.Equal(t, types.SeverityHigh, ComputeSeverity(4, 40))     // 1 + 2 - 1 = 2
	assert.Equal(t, types.SeverityCritical, ComputeSeverity(6, 40)) // 1 + 3 - 1 = 3
	// Clamped at critical no matter how many confirmations pile up.
	assert.Equal(t, types.SeverityCritical, ComputeSeverity(20, 0))
}

func TestApplySessionResults_OpensGap(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	sess := sessionWithTurns("u1", gapTurn(0, "PostgreSQL", 35, types.GapKnowledge))
	require.NoError(t, led.ApplySessionResults(ctx, sess))

	gap, err := st.LoadGap(ctx, "u1", "PostgreSQL", types.GapKnowledge)
	require.NoError(t, err)
	assert.Equal(t, types.GapOpen, gap.Status)
	require.Len(t, gap.Confirmations, 1)
	assert.Equal(t, 35.0, gap.Confirmations[0].Score)
	assert.Equal(t, "PostgreSQL", gap.Recommendation.Topic)
	assert.GreaterOrEqual(t, gap.Recommendation.Priority, 2)
}

func TestApplySessionResults_Idempotent(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	sess := sessionWithTurns("u1", gapTurn(0, "PostgreSQL", 35, types.GapKnowledge))
	require.NoError(t, led.ApplySessionResults(ctx, sess))
	require.NoError(t, led.ApplySessionResults(ctx, sess))

	gap, err := st.LoadGap(ctx, "u1", "PostgreSQL", types.GapKnowledge)
	require.NoError(t, err)
	assert.Len(t, gap.Confirmations, 1)

	prog, err := st.LoadProgress(ctx, "u1", "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, 1, prog.TotalSessions)
	assert.Len(t, prog.ScoreTrends, 1)
}

func TestGapLifecycle_ClosesAfterSustainedStrongAnswers(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	// Two weak sessions open and confirm the gap, then two strong answers
	// on the same skill close it.
	require.NoError(t, led.ApplySessionResults(ctx,
		sessionWithTurns("u1", gapTurn(0, "indexing", 35, types.GapKnowledge))))
	require.NoError(t, led.ApplySessionResults(ctx,
		sessionWithTurns("u1", gapTurn(0, "indexing", 40, types.GapKnowledge))))

	gap, err := st.LoadGap(ctx, "u1", "indexing", types.GapKnowledge)
	require.NoError(t, err)
	assert.Equal(t, types.GapOpen, gap.Status)
	assert.Len(t, gap.Confirmations, 2)

	require.NoError(t, led.ApplySessionResults(ctx,
		sessionWithTurns("u1", gapTurn(0, "indexing", 80, types.GapNone))))

	gap, err = st.LoadGap(ctx, "u1", "indexing", types.GapKnowledge)
	require.NoError(t, err)
	assert.Equal(t, types.GapOpen, gap.Status, "one strong answer is not enough")

	require.NoError(t, led.ApplySessionResults(ctx,
		sessionWithTurns("u1", gapTurn(0, "indexing", 78, types.GapNone))))

	gap, err = st.LoadGap(ctx, "u1", "indexing", types.GapKnowledge)
	require.NoError(t, err)
	assert.Equal(t, types.GapClosed, gap.Status)
	assert.NotNil(t, gap.ClosedAt)
}

func TestGapLifecycle_ReopensOnNegativeEvidence(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	closedAt := time.Now().UTC()
	require.NoError(t, st.UpsertGap(ctx, &types.SkillGap{
		ID:       uuid.New(),
		UserID:   "u1",
		Skill:    "caching",
		Kind:     types.GapDepth,
		Severity: types.SeverityLow,
		Status:   types.GapClosed,
		OpenedAt: closedAt.Add(-time.Hour),
		ClosedAt: &closedAt,
	}))

	require.NoError(t, led.ApplySessionResults(ctx,
		sessionWithTurns("u1", gapTurn(0, "caching", 30, types.GapDepth))))

	gap, err := st.LoadGap(ctx, "u1", "caching", types.GapDepth)
	require.NoError(t, err)
	assert.Equal(t, types.GapOpen, gap.Status)
	assert.Nil(t, gap.ClosedAt)
}

func TestApplySessionResults_UpdatesProgress(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	sess := sessionWithTurns("u1",
		gapTurn(0, "goroutines", 80, types.GapNone),
		gapTurn(1, "goroutines", 60, types.GapNone),
	)
	sess.Final.OverallScore = 70
	require.NoError(t, led.ApplySessionResults(ctx, sess))

	prog, err := st.LoadProgress(ctx, "u1", "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, 1, prog.TotalSessions)
	assert.Equal(t, 2, prog.TotalQuestions)
	assert.InDelta(t, 20.0, prog.TotalMinutes, 0.01)
	require.Len(t, prog.ScoreTrends, 1)
	assert.Equal(t, 70.0, prog.ScoreTrends[0].Score)
	// First observation seeds the EWMA with the topic mean itself.
	assert.InDelta(t, 70.0, prog.TopicMastery["goroutines"], 0.01)
	assert.Greater(t, prog.Readiness, 0.0)
}

func TestTopicMastery_EWMA(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	first := sessionWithTurns("u1", gapTurn(0, "goroutines", 60, types.GapNone))
	first.Final.OverallScore = 60
	require.NoError(t, led.ApplySessionResults(ctx, first))

	second := sessionWithTurns("u1", gapTurn(0, "goroutines", 90, types.GapNone))
	second.Final.OverallScore = 90
	require.NoError(t, led.ApplySessionResults(ctx, second))

	prog, err := st.LoadProgress(ctx, "u1", "Backend Engineer")
	require.NoError(t, err)
	// 0.7*60 + 0.3*90 = 69
	assert.InDelta(t, 69.0, prog.TopicMastery["goroutines"], 0.01)
}

func TestWeakAreas_OpenGapsMostSevereFirst(t *testing.T) {
	st := store.NewMemory()
	led := New(st)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.UpsertGap(ctx, &types.SkillGap{
		ID: uuid.New(), UserID: "u1", Skill: "sql", Kind: types.GapKnowledge,
		Severity: types.SeverityCritical, Status: types.GapOpen, OpenedAt: now,
	}))
	require.NoError(t, st.UpsertGap(ctx, &types.SkillGap{
		ID: uuid.New(), UserID: "u1", Skill: "http", Kind: types.GapDepth,
		Severity: types.SeverityLow, Status: types.GapOpen, OpenedAt: now,
	}))
	require.NoError(t, st.UpsertGap(ctx, &types.SkillGap{
		ID: uuid.New(), UserID: "u1", Skill: "tcp", Kind: types.GapDepth,
		Severity: types.SeverityHigh, Status: types.GapClosed, OpenedAt: now,
	}))

	weak, err := led.WeakAreas(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql", "http"}, weak)
}

func TestReadiness_MonotoneInRecentScores(t *testing.T) {
	gaps := []*types.SkillGap{
		{Severity: types.SeverityHigh, Status: types.GapOpen},
		{Severity: types.SeverityLow, Status: types.GapOpen},
	}

	low := Readiness(trend(40, 45, 50), gaps, 3)
	high := Readiness(trend(70, 75, 80), gaps, 3)
	assert.Greater(t, high, low)

	// Bounds hold at the extremes.
	assert.GreaterOrEqual(t, Readiness(nil, nil, 0), 0.0)
	assert.LessOrEqual(t, Readiness(trend(100, 100, 100, 100, 100), nil, 20), 100.0)
}

func TestReadiness_OpenHighGapsHurt(t *testing.T) {
	trends := trend(70, 70, 70)

	clean := Readiness(trends, []*types.SkillGap{
		{Severity: types.SeverityLow, Status: types.GapOpen},
	}, 3)
	gapped := Readiness(trends, []*types.SkillGap{
		{Severity: types.SeverityCritical, Status: types.GapOpen},
	}, 3)

	assert.Greater(t, clean, gapped)
}

func TestDecayedRecentMean_NewestWeighsMost(t *testing.T) {
	rising := decayedRecentMean(trend(40, 50, 90))
	falling := decayedRecentMean(trend(90, 50, 40))

	assert.Greater(t, rising, falling)
	assert.Equal(t, 0.0, decayedRecentMean(nil))
}

func trend(scores ...float64) []types.ScorePoint {
	out := make([]types.ScorePoint, len(scores))
	base := time.Now().UTC()
	for i, s := range scores {
		out[i] = types.ScorePoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Score: s}
	}
	return out
}
