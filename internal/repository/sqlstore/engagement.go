package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

var _ repository.EngagementRepository = (*DB)(nil)

// ToggleLike flips the user's like and moves like_count by one in the same
// transaction, so the counter always equals the number of like rows.
func (db *DB) ToggleLike(ctx context.Context, templateID, userID string) (bool, error) {
	return db.toggle(ctx, "template_likes", true, templateID, userID)
}

// ToggleSave flips the user's bookmark. Saves carry no counter.
func (db *DB) ToggleSave(ctx context.Context, templateID, userID string) (bool, error) {
	return db.toggle(ctx, "template_saves", false, templateID, userID)
}

// toggle removes the (template, user) row if present, inserts it otherwise,
// and reports the resulting state. table is one of two package constants.
func (db *DB) toggle(ctx context.Context, table string, counted bool, templateID, userID string) (bool, error) {
	var active bool

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			db.q(`SELECT COUNT(*) FROM templates WHERE id = ?`), templateID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlstore: looking up template %s: %w", templateID, err)
		}
		if exists == 0 {
			return apperror.NotFound("template", templateID)
		}

		result, err := tx.ExecContext(ctx,
			db.q(`DELETE FROM `+table+` WHERE template_id = ? AND user_id = ?`), templateID, userID)
		if err != nil {
			return fmt.Errorf("sqlstore: removing %s row: %w", table, err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}

		if removed > 0 {
			active = false
			if counted {
				if _, err := tx.ExecContext(ctx,
					db.q(`UPDATE templates SET like_count = like_count - 1 WHERE id = ? AND like_count > 0`), templateID,
				); err != nil {
					return fmt.Errorf("sqlstore: decrementing like_count of %s: %w", templateID, err)
				}
			}
			return nil
		}

		// ON CONFLICT covers a concurrent toggle that inserted first.
		result, err = tx.ExecContext(ctx,
			db.q(`INSERT INTO `+table+` (template_id, user_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
			templateID, userID, time.Now().UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("profile", userID)
			}
			return fmt.Errorf("sqlstore: inserting %s row: %w", table, err)
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}

		active = true
		if counted && inserted > 0 {
			if _, err := tx.ExecContext(ctx,
				db.q(`UPDATE templates SET like_count = like_count + 1 WHERE id = ?`), templateID,
			); err != nil {
				return fmt.Errorf("sqlstore: incrementing like_count of %s: %w", templateID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return active, nil
}

// AddComment stores a comment with a fresh id and timestamp.
func (db *DB) AddComment(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		db.q(`INSERT INTO template_comments (id, template_id, user_id, comment, created_at) VALUES (?, ?, ?, ?, ?)`),
		c.ID, c.TemplateID, c.UserID, c.Comment, c.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("template", c.TemplateID)
		}
		return fmt.Errorf("sqlstore: adding comment: %w", err)
	}
	return nil
}

func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := db.conn.QueryRowContext(ctx,
		db.q(`SELECT id, template_id, user_id, comment, created_at FROM template_comments WHERE id = ?`), id,
	).Scan(&c.ID, &c.TemplateID, &c.UserID, &c.Comment, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlstore: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// DeleteComment removes a comment. Authorization is the caller's job.
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		db.q(`DELETE FROM template_comments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting comment %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("comment", id)
	}
	return nil
}

// ListComments returns a template's comments, newest first.
func (db *DB) ListComments(ctx context.Context, templateID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT id, template_id, user_id, comment, created_at FROM template_comments
		 WHERE template_id = ?
		 ORDER BY created_at DESC, id DESC`), templateID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing comments of %s: %w", templateID, err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.TemplateID, &c.UserID, &c.Comment, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating comments: %w", err)
	}
	return comments, nil
}

// CountComments counts comments per template with one grouped query.
// Templates without comments are absent from the map.
func (db *DB) CountComments(ctx context.Context, templateIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT template_id, COUNT(*) FROM template_comments
		 WHERE template_id IN (`+placeholders(len(templateIDs))+`)
		 GROUP BY template_id`),
		stringArgs(nil, templateIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: counting comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning comment count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating comment counts: %w", err)
	}
	return out, nil
}

func (db *DB) ViewerState(ctx context.Context, userID string, templateIDs []string) (map[string]bool, map[string]bool, error) {
	liked, err := db.engagedSet(ctx, "template_likes", userID, templateIDs)
	if err != nil {
		return nil, nil, err
	}
	saved, err := db.engagedSet(ctx, "template_saves", userID, templateIDs)
	if err != nil {
		return nil, nil, err
	}
	return liked, saved, nil
}

func (db *DB) engagedSet(ctx context.Context, table, userID string, templateIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if userID == "" || len(templateIDs) == 0 {
		return out, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT template_id FROM `+table+`
		 WHERE user_id = ? AND template_id IN (`+placeholders(len(templateIDs))+`)`),
		stringArgs([]any{userID}, templateIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading %s of %s: %w", table, userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning %s row: %w", table, err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating %s: %w", table, err)
	}
	return out, nil
}
