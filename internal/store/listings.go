package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const listingColumns = `id, title, description, category, location, date_lost, status, owner_id, image_url, created_at`

// CreateListing inserts a new listing, assigning an ID and creation time if unset.
func (s *SQLiteStore) CreateListing(ctx context.Context, l *listing.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.Status == "" {
		l.Status = listing.StatusLost
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (:id, :title, :description, :category, :location, :date_lost, :status, :owner_id, :image_url, :created_at)
	`, l)
	if err != nil {
		return fmt.Errorf("create listing %s: %w", l.ID, err)
	}
	return nil
}

// UpsertListing inserts l or refreshes its content fields. Status is left
// untouched on conflict so a returned listing stays returned.
func (s *SQLiteStore) UpsertListing(ctx context.Context, l *listing.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.Status == "" {
		l.Status = listing.StatusFound
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (:id, :title, :description, :category, :location, :date_lost, :status, :owner_id, :image_url, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			location = excluded.location,
			image_url = excluded.image_url
	`, l)
	if err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertListings(ctx context.Context, ls []listing.Listing) error {
	for i := range ls {
		if err := s.UpsertListing(ctx, &ls[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	var l listing.Listing
	err := s.db.GetContext(ctx, &l, "SELECT "+listingColumns+" FROM listings WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return &l, nil
}

// ListListings returns listings oldest first, filtered by status and owner.
func (s *SQLiteStore) ListListings(ctx context.Context, opts ListingListOpts) ([]listing.Listing, error) {
	query := "SELECT " + listingColumns + " FROM listings WHERE 1=1"
	var args []any

	if len(opts.Statuses) > 0 {
		in, inArgs, err := sqlx.In(" AND status IN (?)", opts.Statuses)
		if err != nil {
			return nil, fmt.Errorf("list listings: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}
	if opts.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, opts.OwnerID)
	}

	query += " ORDER BY created_at, id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var listings []listing.Listing
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

func (s *SQLiteStore) UpdateListingStatus(ctx context.Context, id string, status listing.Status) error {
	if !status.Valid() {
		return fmt.Errorf("update listing %s: invalid status %q", id, status)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE listings SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update listing %s: %w", id, ErrNotFound)
	}
	return nil
}
