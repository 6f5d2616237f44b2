package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/interview-engine/internal/types"
)

// Postgres implements Store on a pgx connection pool. Records are stored as
// JSONB documents with the columns needed for lookups and CAS pulled out.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Migrate creates the engine's tables when they do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			version BIGINT NOT NULL,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON interview_sessions (user_id)`,
		`CREATE TABLE IF NOT EXISTS skill_gaps (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			skill TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			severity_rank INT NOT NULL,
			doc JSONB NOT NULL,
			UNIQUE (user_id, skill, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS interview_progress (
			user_id TEXT NOT NULL,
			target_role TEXT NOT NULL,
			doc JSONB NOT NULL,
			PRIMARY KEY (user_id, target_role)
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new session record at version 1.
func (p *Postgres) CreateSession(ctx context.Context, sess *types.Session) error {
	sess.Version = 1
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, user_id, status, version, doc, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, string(sess.Status), sess.Version, doc, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// LoadSession retrieves a session by id.
func (p *Postgres) LoadSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM interview_sessions WHERE id = $1`, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess types.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// SaveSession writes the session under compare-and-swap on the version
// column. The whole record (turns included) is replaced in one statement,
// so turn appends and state transitions are atomic.
func (p *Postgres) SaveSession(ctx context.Context, sess *types.Session) error {
	next := sess.Version + 1
	doc, err := marshalSessionAt(sess, next)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE interview_sessions
		 SET status = $1, version = $2, doc = $3
		 WHERE id = $4 AND version = $5`,
		string(sess.Status), next, doc, sess.ID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or someone else won the CAS.
		var exists bool
		if err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM interview_sessions WHERE id = $1)`, sess.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	sess.Version = next
	return nil
}

func marshalSessionAt(sess *types.Session, version int64) ([]byte, error) {
	old := sess.Version
	sess.Version = version
	doc, err := json.Marshal(sess)
	sess.Version = old
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return doc, nil
}

// UpsertGap inserts or replaces a gap record.
func (p *Postgres) UpsertGap(ctx context.Context, gap *types.SkillGap) error {
	doc, err := json.Marshal(gap)
	if err != nil {
		return fmt.Errorf("failed to marshal gap: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO skill_gaps (id, user_id, skill, kind, status, severity_rank, doc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, skill, kind)
		 DO UPDATE SET status = $5, severity_rank = $6, doc = $7`,
		gap.ID, gap.UserID, gap.Skill, string(gap.Kind), string(gap.Status), gap.Severity.Rank(), doc,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert gap: %w", err)
	}
	return nil
}

// LoadGap retrieves the gap for (userID, skill, kind).
func (p *Postgres) LoadGap(ctx context.Context, userID, skill string, kind types.GapKind) (*types.SkillGap, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM skill_gaps WHERE user_id = $1 AND LOWER(skill) = LOWER($2) AND kind = $3`,
		userID, skill, string(kind),
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load gap: %w", err)
	}
	return unmarshalGap(doc)
}

// LoadGapByID retrieves a gap by id.
func (p *Postgres) LoadGapByID(ctx context.Context, id uuid.UUID) (*types.SkillGap, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM skill_gaps WHERE id = $1`, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load gap: %w", err)
	}
	return unmarshalGap(doc)
}

// LoadGapsByUser retrieves a user's gaps, severity descending.
func (p *Postgres) LoadGapsByUser(ctx context.Context, userID string, status types.GapStatus) ([]*types.SkillGap, error) {
	query := `SELECT doc FROM skill_gaps WHERE user_id = $1 ORDER BY severity_rank DESC, skill ASC`
	args := []any{userID}
	if status != "" {
		query = `SELECT doc FROM skill_gaps WHERE user_id = $1 AND status = $2 ORDER BY severity_rank DESC, skill ASC`
		args = append(args, string(status))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query gaps: %w", err)
	}
	defer rows.Close()

	var out []*types.SkillGap
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan gap: %w", err)
		}
		gap, err := unmarshalGap(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, gap)
	}
	return out, rows.Err()
}

func unmarshalGap(doc []byte) (*types.SkillGap, error) {
	var gap types.SkillGap
	if err := json.Unmarshal(doc, &gap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gap: %w", err)
	}
	return &gap, nil
}

// UpsertProgress inserts or replaces progress for (user, role).
func (p *Postgres) UpsertProgress(ctx context.Context, prog *types.InterviewProgress) error {
	doc, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO interview_progress (user_id, target_role, doc)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, target_role) DO UPDATE SET doc = $3`,
		prog.UserID, prog.TargetRole, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}

// LoadProgress retrieves progress for (userID, role).
func (p *Postgres) LoadProgress(ctx context.Context, userID, role string) (*types.InterviewProgress, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM interview_progress WHERE user_id = $1 AND target_role = $2`,
		userID, role,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	var prog types.InterviewProgress
	if err := json.Unmarshal(doc, &prog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &prog, nil
}
