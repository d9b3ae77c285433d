package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

var _ repository.ShareRepository = (*DB)(nil)

// ReplaceShares swaps the full grant set of a template. Public templates end up
// with no grants at all, whatever the caller passed.
func (db *DB) ReplaceShares(ctx context.Context, templateID, ownerID string, usernames []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			owner      string
			visibility string
		)
		err := tx.QueryRowContext(ctx,
			db.q(`SELECT user_id, visibility FROM templates WHERE id = ?`), templateID,
		).Scan(&owner, &visibility)
		if err == sql.ErrNoRows {
			return apperror.NotFound("template", templateID)
		}
		if err != nil {
			return fmt.Errorf("sqlstore: looking up template %s: %w", templateID, err)
		}
		if owner != ownerID {
			return apperror.Forbidden("only the owner can change who a template is shared with")
		}

		if err := db.replaceGrants(ctx, tx, templateID, model.Visibility(visibility), usernames); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			db.q(`UPDATE templates SET updated_at = ? WHERE id = ?`), time.Now().UTC(), templateID)
		if err != nil {
			return fmt.Errorf("sqlstore: touching template %s: %w", templateID, err)
		}
		return nil
	})
}

func (db *DB) replaceGrants(ctx context.Context, tx *sql.Tx, templateID string, visibility model.Visibility, usernames []string) error {
	if _, err := tx.ExecContext(ctx,
		db.q(`DELETE FROM template_shares WHERE template_id = ?`), templateID,
	); err != nil {
		return fmt.Errorf("sqlstore: clearing shares of %s: %w", templateID, err)
	}
	if visibility != model.VisibilityPrivate {
		return nil
	}

	now := time.Now().UTC()
	for _, username := range usernames {
		_, err := tx.ExecContext(ctx,
			db.q(`INSERT INTO template_shares (template_id, shared_with_username, created_at)
			 VALUES (?, ?, ?) ON CONFLICT DO NOTHING`),
			templateID, username, now,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.ValidationFailed("shared_with", fmt.Sprintf("no user named %s", username))
			}
			return fmt.Errorf("sqlstore: granting %s on %s: %w", username, templateID, err)
		}
	}
	return nil
}

// HasGrant reports whether username appears in the template's grant set.
func (db *DB) HasGrant(ctx context.Context, templateID, username string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		db.q(`SELECT COUNT(*) FROM template_shares WHERE template_id = ? AND shared_with_username = ?`),
		templateID, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking grant on %s: %w", templateID, err)
	}
	return n > 0, nil
}

// ListGrants returns the grantee usernames per template, alphabetically.
func (db *DB) ListGrants(ctx context.Context, templateIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT template_id, shared_with_username FROM template_shares
		 WHERE template_id IN (`+placeholders(len(templateIDs))+`)
		 ORDER BY template_id, shared_with_username`),
		stringArgs(nil, templateIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var templateID, username string
		if err := rows.Scan(&templateID, &username); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning grant row: %w", err)
		}
		out[templateID] = append(out[templateID], username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating grants: %w", err)
	}
	return out, nil
}

// ListSharedWith returns the private templates granted to username, newest first.
func (db *DB) ListSharedWith(ctx context.Context, username string) ([]model.Template, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+templateColumns+` FROM templates t
		 JOIN template_shares s ON s.template_id = t.id
		 WHERE s.shared_with_username = ? AND t.visibility = ?
		 ORDER BY t.created_at DESC, t.id DESC`),
		username, string(model.VisibilityPrivate),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing templates shared with %s: %w", username, err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	return db.attachBlocks(ctx, templates)
}

// ListSharedBy returns the owner's private templates that have at least one grant.
func (db *DB) ListSharedBy(ctx context.Context, ownerID string) ([]model.Template, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+templateColumns+` FROM templates t
		 WHERE t.user_id = ? AND t.visibility = ?
		   AND EXISTS (SELECT 1 FROM template_shares s WHERE s.template_id = t.id)
		 ORDER BY t.created_at DESC, t.id DESC`),
		ownerID, string(model.VisibilityPrivate),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing templates shared by %s: %w", ownerID, err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	return db.attachBlocks(ctx, templates)
}
