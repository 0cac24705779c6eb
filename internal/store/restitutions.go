package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/google/uuid"
)

// ConfirmRestitution records the handover of a listing and marks it returned
// in one transaction.
func (s *SQLiteStore) ConfirmRestitution(ctx context.Context, listingID, userID string) (*Restitution, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin restitution: %w", err)
	}
	defer tx.Rollback()

	var status listing.Status
	err = tx.GetContext(ctx, &status, "SELECT status FROM listings WHERE id = ?", listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("restitution for %s: %w", listingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("restitution for %s: %w", listingID, err)
	}
	if status == listing.StatusReturned {
		return nil, fmt.Errorf("restitution for %s: %w", listingID, ErrAlreadyReturned)
	}

	now := time.Now().UTC()
	r := &Restitution{
		ID:              uuid.NewString(),
		ListingID:       listingID,
		UserID:          userID,
		Confirmed:       true,
		DateRestitution: now,
		CreatedAt:       now,
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO restitutions (id, listing_id, user_id, confirmed, date_restitution, created_at)
		VALUES (:id, :listing_id, :user_id, :confirmed, :date_restitution, :created_at)
	`, r); err != nil {
		return nil, fmt.Errorf("insert restitution for %s: %w", listingID, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE listings SET status = ? WHERE id = ?", listing.StatusReturned, listingID); err != nil {
		return nil, fmt.Errorf("mark %s returned: %w", listingID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit restitution for %s: %w", listingID, err)
	}
	return r, nil
}

// ListRestitutions returns a user's restitutions, newest first.
func (s *SQLiteStore) ListRestitutions(ctx context.Context, userID string) ([]Restitution, error) {
	var rs []Restitution
	err := s.db.SelectContext(ctx, &rs, `
		SELECT r.id, r.listing_id, r.user_id, r.confirmed, r.date_restitution, r.created_at,
		       l.title AS listing_title
		FROM restitutions r
		JOIN listings l ON l.id = r.listing_id
		WHERE r.user_id = ?
		ORDER BY r.date_restitution DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list restitutions for %s: %w", userID, err)
	}
	return rs, nil
}
