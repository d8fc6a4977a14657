package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"

	"github.com/osa030/19dig/internal/domain/preference"
)

// GetPreferences loads the preference document of a user.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*preference.UserPreferences, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM preferences WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "preferences for %s", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load preferences")
	}

	var p preference.UserPreferences
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, errors.Wrapf(err, "invalid preferences document for %s", userID)
	}
	p.UserID = userID
	return &p, nil
}

// SavePreferences upserts the preference document of a user.
func (s *Store) SavePreferences(ctx context.Context, p *preference.UserPreferences) error {
	if p.UserID == "" {
		return errors.New("preferences without user id")
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO preferences(user_id, document, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		p.UserID, string(doc), p.UpdatedAt.UnixNano())
	return errors.Wrap(err, "failed to save preferences")
}
