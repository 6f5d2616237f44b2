package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/interview-engine/internal/types"
)

func newSession() *types.Session {
	return &types.Session{
		ID:            uuid.New(),
		UserID:        "u1",
		InterviewType: types.InterviewTechnical,
		TargetRole:    "Backend Engineer",
		Status:        types.StatusCreated,
		State:         types.SessionState{DifficultyLevel: 3},
		MaxTurns:      10,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemory_SessionRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := newSession()
	require.NoError(t, m.CreateSession(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)

	loaded, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, types.StatusCreated, loaded.Status)
}

func TestMemory_LoadSessionNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.LoadSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SaveSessionCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := newSession()
	require.NoError(t, m.CreateSession(ctx, sess))

	// Two readers load the same version.
	a, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	b, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)

	a.Status = types.StatusInProgress
	require.NoError(t, m.SaveSession(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	// The stale writer loses.
	b.Status = types.StatusAbandoned
	err = m.SaveSession(ctx, b)
	assert.ErrorIs(t, err, ErrVersionConflict)

	loaded, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, loaded.Status)
}

func TestMemory_SaveSessionNotFound(t *testing.T) {
	m := NewMemory()
	err := m.SaveSession(context.Background(), newSession())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_LoadReturnsDeepCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := newSession()
	require.NoError(t, m.CreateSession(ctx, sess))

	a, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	a.Status = types.StatusAbandoned // mutate the copy only

	b, err := m.LoadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreated, b.Status)
}

func TestMemory_GapLookupIsCaseInsensitive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	gap := &types.SkillGap{
		ID: uuid.New(), UserID: "u1", Skill: "PostgreSQL",
		Kind: types.GapKnowledge, Severity: types.SeverityLow,
		Status: types.GapOpen, OpenedAt: time.Now().UTC(),
	}
	require.NoError(t, m.UpsertGap(ctx, gap))

	found, err := m.LoadGap(ctx, "u1", "postgresql", types.GapKnowledge)
	require.NoError(t, err)
	assert.Equal(t, gap.ID, found.ID)

	_, err = m.LoadGap(ctx, "u1", "postgresql", types.GapDepth)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_GapsSortedBySeverityDesc(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, g := range []*types.SkillGap{
		{ID: uuid.New(), UserID: "u1", Skill: "b-low", Kind: types.GapDepth, Severity: types.SeverityLow, Status: types.GapOpen, OpenedAt: now},
		{ID: uuid.New(), UserID: "u1", Skill: "a-critical", Kind: types.GapKnowledge, Severity: types.SeverityCritical, Status: types.GapOpen, OpenedAt: now},
		{ID: uuid.New(), UserID: "u1", Skill: "c-high", Kind: types.GapDepth, Severity: types.SeverityHigh, Status: types.GapClosed, OpenedAt: now},
		{ID: uuid.New(), UserID: "u2", Skill: "other-user", Kind: types.GapDepth, Severity: types.SeverityHigh, Status: types.GapOpen, OpenedAt: now},
	} {
		require.NoError(t, m.UpsertGap(ctx, g))
	}

	all, err := m.LoadGapsByUser(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-critical", all[0].Skill)
	assert.Equal(t, "c-high", all[1].Skill)
	assert.Equal(t, "b-low", all[2].Skill)

	open, err := m.LoadGapsByUser(ctx, "u1", types.GapOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
}

func TestMemory_ProgressRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.LoadProgress(ctx, "u1", "Backend Engineer")
	assert.ErrorIs(t, err, ErrNotFound)

	prog := &types.InterviewProgress{
		UserID:     "u1",
		TargetRole: "Backend Engineer",
		Readiness:  42,
	}
	require.NoError(t, m.UpsertProgress(ctx, prog))

	loaded, err := m.LoadProgress(ctx, "u1", "Backend Engineer")
	require.NoError(t, err)
	assert.Equal(t, 42.0, loaded.Readiness)

	// Role is part of the key.
	_, err = m.LoadProgress(ctx, "u1", "Data Engineer")
	assert.ErrorIs(t, err, ErrNotFound)
}
