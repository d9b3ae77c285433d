package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

// compile-time check that *DB implements repository.ProfileRepository
var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `id, username, email, pic, github_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	var (
		p        model.Profile
		githubID sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.Pic, &githubID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		p.GitHubID = &id
	}
	return &p, nil
}

// GetProfile returns the profile with the given id.
// Returns apperror.ErrNotFound if no profile exists with that id.
func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("sqlstore: getting profile %s: %w", id, err)
	}
	return p, nil
}

// GetProfileByUsername looks a profile up by its exact (case-sensitive) username.
func (db *DB) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+profileColumns+` FROM profiles WHERE username = ?`), username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", username)
		}
		return nil, fmt.Errorf("sqlstore: getting profile by username %s: %w", username, err)
	}
	return p, nil
}

// GetProfileByEmail resolves legacy email-keyed share entries.
func (db *DB) GetProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+profileColumns+` FROM profiles WHERE email = ? AND email <> '' ORDER BY created_at LIMIT 1`), email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", email)
		}
		return nil, fmt.Errorf("sqlstore: getting profile by email: %w", err)
	}
	return p, nil
}

// GetProfiles fetches a batch of profiles with a single IN query.
// The feed and comment views call this once per page, never once per row.
func (db *DB) GetProfiles(ctx context.Context, ids []string) (map[string]*model.Profile, error) {
	return db.batchProfiles(ctx, "id", ids, func(p *model.Profile) string { return p.ID })
}

func (db *DB) GetProfilesByUsername(ctx context.Context, usernames []string) (map[string]*model.Profile, error) {
	return db.batchProfiles(ctx, "username", usernames, func(p *model.Profile) string { return p.Username })
}

// batchProfiles loads profiles whose column is in keys. column is always a
// literal from this file.
func (db *DB) batchProfiles(ctx context.Context, column string, keys []string, keyOf func(*model.Profile) string) (map[string]*model.Profile, error) {
	out := make(map[string]*model.Profile, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+profileColumns+` FROM profiles WHERE `+column+` IN (`+placeholders(len(keys))+`)`),
		stringArgs(nil, keys)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: batch loading profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning profile row: %w", err)
		}
		out[keyOf(p)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating profiles: %w", err)
	}
	return out, nil
}

// UpsertGitHubProfile creates the profile for a provider account on first
// sign-in, or refreshes the email of the existing one.
//
// The username and picture of an existing profile are left alone: users may
// have changed them here, and the provider's values are only a starting point.
// A username collision on insert is reported as apperror.ErrConflict so the
// caller can pick another candidate.
func (db *DB) UpsertGitHubProfile(ctx context.Context, p *model.Profile) error {
	if p.GitHubID == nil {
		return fmt.Errorf("sqlstore: upserting profile without a provider id")
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanProfile(tx.QueryRowContext(ctx,
			db.q(`SELECT `+profileColumns+` FROM profiles WHERE github_id = ?`), *p.GitHubID))
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("sqlstore: looking up profile by github_id %d: %w", *p.GitHubID, err)
		}

		now := time.Now().UTC()

		if existing != nil {
			existing.Email = p.Email
			existing.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				db.q(`UPDATE profiles SET email = ?, updated_at = ? WHERE id = ?`),
				existing.Email, existing.UpdatedAt, existing.ID,
			); err != nil {
				return fmt.Errorf("sqlstore: refreshing profile %s: %w", existing.ID, err)
			}
			*p = *existing
			return nil
		}

		p.ID = uuid.New().String()
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := db.insertProfile(ctx, tx, p); err != nil {
			return err
		}
		return nil
	})
}

// CreateProfile inserts a profile with a fresh id.
func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.insertProfile(ctx, tx, p)
	})
}

func (db *DB) insertProfile(ctx context.Context, tx *sql.Tx, p *model.Profile) error {
	var githubID any
	if p.GitHubID != nil {
		githubID = *p.GitHubID
	}
	_, err := tx.ExecContext(ctx,
		db.q(`INSERT INTO profiles (id, username, email, pic, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Username, p.Email, p.Pic, githubID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username", p.Username)
		}
		return fmt.Errorf("sqlstore: inserting profile %s: %w", p.Username, err)
	}
	return nil
}

// UpdateProfile writes username and pic. The UNIQUE constraint on username is
// the final arbiter of uniqueness; a violation becomes apperror.ErrConflict.
func (db *DB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		db.q(`UPDATE profiles SET username = ?, pic = ?, updated_at = ? WHERE id = ?`),
		p.Username, p.Pic, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: fmt.Sprintf("username %s is already taken", p.Username),
				Field:   "username",
			}
		}
		return fmt.Errorf("sqlstore: updating profile %s: %w", p.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("profile", p.ID)
	}
	return nil
}

// SearchProfiles returns profiles whose username starts with prefix
// (case-insensitive), ordered alphabetically.
func (db *DB) SearchProfiles(ctx context.Context, prefix string, limit int) ([]model.Profile, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	pattern := likePattern(prefix)[1:] // prefix match: drop the leading %

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+profileColumns+` FROM profiles
		 WHERE `+db.lower("username")+` LIKE ? ESCAPE '\'
		 ORDER BY username
		 LIMIT ?`),
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: searching profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0, limit)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning profile row: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating profiles: %w", err)
	}
	return profiles, nil
}
