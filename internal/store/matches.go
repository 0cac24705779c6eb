package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/google/uuid"
)

// UpsertMatches writes the batch in a single transaction, inserting new
// pairs and overwriting the score of pairs already stored. Either the whole
// batch is applied or none of it is.
func (s *SQLiteStore) UpsertMatches(ctx context.Context, batch []MatchCandidate) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert matches: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO matches (id, lost_id, found_id, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(lost_id, found_id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert matches: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range batch {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), c.LostID, c.FoundID, c.Score, now, now); err != nil {
			return fmt.Errorf("upsert match %s/%s: %w", c.LostID, c.FoundID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert matches: %w", err)
	}
	return nil
}

// ListMatchesForUser returns matches where userID owns the lost or the found
// listing, joined with both listings, highest score first.
func (s *SQLiteStore) ListMatchesForUser(ctx context.Context, userID string) ([]Match, error) {
	query := `
		SELECT m.id, m.lost_id, m.found_id, m.score, m.created_at, m.updated_at,
		       ` + prefixedListingColumns("l", "lost") + `,
		       ` + prefixedListingColumns("f", "found") + `
		FROM matches m
		JOIN listings l ON l.id = m.lost_id
		JOIN listings f ON f.id = m.found_id
		WHERE l.owner_id = ? OR f.owner_id = ?
		ORDER BY m.score DESC, m.created_at, m.id`

	var matches []Match
	if err := s.db.SelectContext(ctx, &matches, query, userID, userID); err != nil {
		return nil, fmt.Errorf("list matches for %s: %w", userID, err)
	}
	return matches, nil
}

// PruneMatches deletes stale matches and reports how many were removed.
func (s *SQLiteStore) PruneMatches(ctx context.Context, opts PruneOpts) (int64, error) {
	var conds []string
	var args []any

	if opts.Returned {
		conds = append(conds,
			`lost_id IN (SELECT id FROM listings WHERE status = ?)`,
			`found_id IN (SELECT id FROM listings WHERE status = ?)`)
		args = append(args, listing.StatusReturned, listing.StatusReturned)
	}
	if opts.AtOrBelow > 0 {
		conds = append(conds, `score <= ?`)
		args = append(args, opts.AtOrBelow)
	}
	if len(conds) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM matches WHERE "+strings.Join(conds, " OR "), args...)
	if err != nil {
		return 0, fmt.Errorf("prune matches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune matches: %w", err)
	}
	return n, nil
}

// prefixedListingColumns selects the listing columns of alias as "prefix.column"
// so sqlx can scan them into a nested struct.
func prefixedListingColumns(alias, prefix string) string {
	cols := strings.Split(listingColumns, ", ")
	for i, c := range cols {
		cols[i] = fmt.Sprintf(`%s.%s AS "%s.%s"`, alias, c, prefix, c)
	}
	return strings.Join(cols, ", ")
}
