package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/repository"
)

var _ repository.TemplateRepository = (*DB)(nil)

const templateColumns = `t.id, t.user_id, t.title, t.subtitle, t.cover_image, t.visibility, t.like_count, t.created_at, t.updated_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var (
		t          model.Template
		visibility string
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Subtitle, &t.CoverImage,
		&visibility, &t.LikeCount, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Visibility = model.Visibility(visibility)
	return &t, nil
}

// scanTemplates drains rows into a slice and closes them.
func scanTemplates(rows *sql.Rows) ([]model.Template, error) {
	defer rows.Close()

	templates := make([]model.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning template row: %w", err)
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating templates: %w", err)
	}
	return templates, nil
}

// CreateTemplate inserts the template row, its code blocks and its share
// grants in one transaction. Either all of them exist afterwards or none do.
func (db *DB) CreateTemplate(ctx context.Context, t *model.Template, grants []string) error {
	t.ID = xid.New().String()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.LikeCount = 0

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			db.q(`INSERT INTO templates (id, user_id, title, subtitle, cover_image, visibility, like_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`),
			t.ID, t.UserID, t.Title, t.Subtitle, t.CoverImage, string(t.Visibility), t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("profile", t.UserID)
			}
			return fmt.Errorf("sqlstore: creating template: %w", err)
		}

		if err := db.insertBlocks(ctx, tx, t); err != nil {
			return err
		}
		return db.replaceGrants(ctx, tx, t.ID, t.Visibility, grants)
	})
}

// UpdateTemplate applies a full replace: scalars, then every block, then every
// grant. Ownership is part of the WHERE clause, so another user's template is
// indistinguishable from a missing one.
func (db *DB) UpdateTemplate(ctx context.Context, t *model.Template, grants []string) error {
	t.UpdatedAt = time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			db.q(`UPDATE templates
			 SET title = ?, subtitle = ?, cover_image = ?, visibility = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`),
			t.Title, t.Subtitle, t.CoverImage, string(t.Visibility), t.UpdatedAt,
			t.ID, t.UserID,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: updating template %s: %w", t.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("template", t.ID)
		}

		if _, err := tx.ExecContext(ctx,
			db.q(`DELETE FROM template_code_blocks WHERE template_id = ?`), t.ID,
		); err != nil {
			return fmt.Errorf("sqlstore: clearing blocks of %s: %w", t.ID, err)
		}
		if err := db.insertBlocks(ctx, tx, t); err != nil {
			return err
		}
		if err := db.replaceGrants(ctx, tx, t.ID, t.Visibility, grants); err != nil {
			return err
		}

		// like_count and created_at are server-owned; hand back the stored values.
		if err := tx.QueryRowContext(ctx,
			db.q(`SELECT like_count, created_at FROM templates WHERE id = ?`), t.ID,
		).Scan(&t.LikeCount, &t.CreatedAt); err != nil {
			return fmt.Errorf("sqlstore: reloading template %s: %w", t.ID, err)
		}
		return nil
	})
}

func (db *DB) insertBlocks(ctx context.Context, tx *sql.Tx, t *model.Template) error {
	for i := range t.Blocks {
		b := &t.Blocks[i]
		b.ID = xid.New().String()
		b.TemplateID = t.ID
		b.Position = i

		var corrected any
		if b.CorrectedCode != nil {
			corrected = *b.CorrectedCode
		}
		if _, err := tx.ExecContext(ctx,
			db.q(`INSERT INTO template_code_blocks (id, template_id, position, description, code, corrected_code)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			b.ID, b.TemplateID, b.Position, b.Description, b.Code, corrected,
		); err != nil {
			return fmt.Errorf("sqlstore: inserting block %d of %s: %w", i, t.ID, err)
		}
	}
	return nil
}

// DeleteTemplate removes a template; blocks, grants, likes, saves and comments
// go with it through ON DELETE CASCADE.
func (db *DB) DeleteTemplate(ctx context.Context, id, ownerID string) error {
	var owner string
	err := db.conn.QueryRowContext(ctx,
		db.q(`SELECT user_id FROM templates WHERE id = ?`), id,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return nil // already gone
	}
	if err != nil {
		return fmt.Errorf("sqlstore: looking up template %s: %w", id, err)
	}
	if owner != ownerID {
		return apperror.Forbidden("only the owner can delete this template")
	}

	if _, err := db.conn.ExecContext(ctx,
		db.q(`DELETE FROM templates WHERE id = ? AND user_id = ?`), id, ownerID,
	); err != nil {
		return fmt.Errorf("sqlstore: deleting template %s: %w", id, err)
	}
	return nil
}

// GetTemplate returns the template and its blocks regardless of visibility.
func (db *DB) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	t, err := scanTemplate(db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+templateColumns+` FROM templates t WHERE t.id = ?`), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("template", id)
		}
		return nil, fmt.Errorf("sqlstore: getting template %s: %w", id, err)
	}

	blocks, err := db.ListBlocks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	t.Blocks = blocks[id]
	if t.Blocks == nil {
		t.Blocks = []model.CodeBlock{}
	}
	return t, nil
}

// ListTemplates returns one page of the feed's base set.
//
//   - FeedAll:   public templates, newest first
//   - FeedLiked: templates the viewer liked, most recently liked first
//   - FeedSaved: templates the viewer saved, most recently saved first
//
// The search predicate runs in SQL so the page size holds after filtering.
func (db *DB) ListTemplates(ctx context.Context, q repository.TemplateQuery) ([]model.Template, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + templateColumns + ` FROM templates t JOIN profiles p ON p.id = t.user_id`)

	orderBy := ` ORDER BY t.created_at DESC, t.id DESC`
	switch q.Filter {
	case model.FeedLiked:
		sb.WriteString(` JOIN template_likes e ON e.template_id = t.id AND e.user_id = ? WHERE 1 = 1`)
		args = append(args, q.ViewerID)
		orderBy = ` ORDER BY e.created_at DESC, t.id DESC`
	case model.FeedSaved:
		sb.WriteString(` JOIN template_saves e ON e.template_id = t.id AND e.user_id = ? WHERE 1 = 1`)
		args = append(args, q.ViewerID)
		orderBy = ` ORDER BY e.created_at DESC, t.id DESC`
	default:
		sb.WriteString(` WHERE t.visibility = ?`)
		args = append(args, string(model.VisibilityPublic))
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := likePattern(search)
		fmt.Fprintf(&sb, ` AND (%s LIKE ? ESCAPE '\' OR %s LIKE ? ESCAPE '\' OR %s LIKE ? ESCAPE '\')`,
			db.lower("t.title"), db.lower("t.subtitle"), db.lower("p.username"))
		args = append(args, pattern, pattern, pattern)
	}

	sb.WriteString(orderBy)
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, db.q(sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing templates: %w", err)
	}
	return scanTemplates(rows)
}

// ListBlocks loads the code blocks of many templates with one query.
func (db *DB) ListBlocks(ctx context.Context, templateIDs []string) (map[string][]model.CodeBlock, error) {
	out := make(map[string][]model.CodeBlock, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT id, template_id, position, description, code, corrected_code
		 FROM template_code_blocks
		 WHERE template_id IN (`+placeholders(len(templateIDs))+`)
		 ORDER BY template_id, position`),
		stringArgs(nil, templateIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing blocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b         model.CodeBlock
			corrected sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.TemplateID, &b.Position, &b.Description, &b.Code, &corrected); err != nil {
			return nil, fmt.Errorf("sqlstore: scanning block row: %w", err)
		}
		if corrected.Valid {
			s := corrected.String
			b.CorrectedCode = &s
		}
		out[b.TemplateID] = append(out[b.TemplateID], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating blocks: %w", err)
	}
	return out, nil
}

// ListPrivateUnshared is "my templates": private and granted to nobody.
func (db *DB) ListPrivateUnshared(ctx context.Context, ownerID string) ([]model.Template, error) {
	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+templateColumns+` FROM templates t
		 WHERE t.user_id = ? AND t.visibility = ?
		   AND NOT EXISTS (SELECT 1 FROM template_shares s WHERE s.template_id = t.id)
		 ORDER BY t.created_at DESC, t.id DESC`),
		ownerID, string(model.VisibilityPrivate),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing private templates of %s: %w", ownerID, err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	return db.attachBlocks(ctx, templates)
}

// SetCorrectedCode stores an assistant-suggested alternative for one block.
func (db *DB) SetCorrectedCode(ctx context.Context, templateID, ownerID string, position int, corrected string) error {
	result, err := db.conn.ExecContext(ctx,
		db.q(`UPDATE template_code_blocks SET corrected_code = ?
		 WHERE template_id = ? AND position = ?
		   AND EXISTS (SELECT 1 FROM templates WHERE id = ? AND user_id = ?)`),
		corrected, templateID, position, templateID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: storing corrected code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("code block", fmt.Sprintf("%s/%d", templateID, position))
	}
	return nil
}

func (db *DB) attachBlocks(ctx context.Context, templates []model.Template) ([]model.Template, error) {
	if len(templates) == 0 {
		return templates, nil
	}
	ids := make([]string, len(templates))
	for i := range templates {
		ids[i] = templates[i].ID
	}
	blocks, err := db.ListBlocks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		templates[i].Blocks = blocks[templates[i].ID]
		if templates[i].Blocks == nil {
			templates[i].Blocks = []model.CodeBlock{}
		}
	}
	return templates, nil
}
