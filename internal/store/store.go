// Package store persists sessions, skill gaps, and interview progress.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jonathan/interview-engine/internal/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrVersionConflict is returned when a session save loses the
// compare-and-swap on the version field. The caller should reload and
// surface a state conflict.
var ErrVersionConflict = errors.New("session version conflict")

// Store is the persistence abstraction used by the engine. Session saves
// are atomic on the single session record via CAS on Version; cross-entity
// writes (finalization plus ledger) are retried idempotently by the caller
// with the session id as dedup key.
type Store interface {
	// CreateSession inserts a new session. The session's Version must be 0;
	// it is stored as 1.
	CreateSession(ctx context.Context, sess *types.Session) error

	// LoadSession returns the session or ErrNotFound.
	LoadSession(ctx context.Context, id uuid.UUID) (*types.Session, error)

	// SaveSession writes the full session record (turns included) if and
	// only if the stored version equals sess.Version; on success the
	// version is incremented. Returns ErrVersionConflict otherwise.
	SaveSession(ctx context.Context, sess *types.Session) error

	// UpsertGap inserts or replaces a gap record keyed by its id.
	UpsertGap(ctx context.Context, gap *types.SkillGap) error

	// LoadGap returns the gap for (userID, skill, kind) or ErrNotFound.
	LoadGap(ctx context.Context, userID, skill string, kind types.GapKind) (*types.SkillGap, error)

	// LoadGapByID returns the gap or ErrNotFound.
	LoadGapByID(ctx context.Context, id uuid.UUID) (*types.SkillGap, error)

	// LoadGapsByUser returns the user's gaps, optionally filtered by
	// status (empty status means all), ordered by severity descending.
	LoadGapsByUser(ctx context.Context, userID string, status types.GapStatus) ([]*types.SkillGap, error)

	// UpsertProgress inserts or replaces progress keyed by (user, role).
	UpsertProgress(ctx context.Context, p *types.InterviewProgress) error

	// LoadProgress returns progress for (userID, role) or ErrNotFound.
	LoadProgress(ctx context.Context, userID, role string) (*types.InterviewProgress, error)
}
