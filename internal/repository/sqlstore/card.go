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

var _ repository.CardRepository = (*DB)(nil)

const cardColumns = `id, user_id, url, title, description, image, site_name, created_at, updated_at`

func scanCard(row rowScanner) (*model.Card, error) {
	var c model.Card
	if err := row.Scan(
		&c.ID, &c.UserID, &c.URL, &c.Title, &c.Description,
		&c.Image, &c.SiteName, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateCard(ctx context.Context, c *model.Card) error {
	c.ID = xid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		db.q(`INSERT INTO url_cards (`+cardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.UserID, c.URL, c.Title, c.Description, c.Image, c.SiteName, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("profile", c.UserID)
		}
		return fmt.Errorf("sqlstore: creating card: %w", err)
	}
	return nil
}

func (db *DB) GetCard(ctx context.Context, id string) (*model.Card, error) {
	c, err := scanCard(db.conn.QueryRowContext(ctx,
		db.q(`SELECT `+cardColumns+` FROM url_cards WHERE id = ?`), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("card", id)
		}
		return nil, fmt.Errorf("sqlstore: getting card %s: %w", id, err)
	}
	return c, nil
}

// ListCards returns one user's cards, newest first.
func (db *DB) ListCards(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Card, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		db.q(`SELECT `+cardColumns+` FROM url_cards
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`),
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing cards of %s: %w", userID, err)
	}
	defer rows.Close()

	cards := make([]model.Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning card row: %w", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating cards: %w", err)
	}
	return cards, nil
}

func (db *DB) UpdateCard(ctx context.Context, c *model.Card) error {
	c.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		db.q(`UPDATE url_cards
		 SET url = ?, title = ?, description = ?, image = ?, site_name = ?, updated_at = ?
		 WHERE id = ?`),
		c.URL, c.Title, c.Description, c.Image, c.SiteName, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: updating card %s: %w", c.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("card", c.ID)
	}
	return nil
}

func (db *DB) DeleteCard(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		db.q(`DELETE FROM url_cards WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting card %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("card", id)
	}
	return nil
}
