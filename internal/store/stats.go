package store

import (
	"context"
	"fmt"
)

// UserStats counts a user's listings and restitutions. Effectiveness is the
// share of the user's open listings that have at least one stored match.
func (s *SQLiteStore) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	var st UserStats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM listings WHERE owner_id = ?1) AS listings,
			(SELECT COUNT(*) FROM listings WHERE owner_id = ?1 AND status IN ('lost', 'found')) AS open_listings,
			(SELECT COUNT(DISTINCT l.id) FROM listings l
			   JOIN matches m ON m.lost_id = l.id OR m.found_id = l.id
			  WHERE l.owner_id = ?1 AND l.status IN ('lost', 'found')) AS matched_listings,
			(SELECT COUNT(*) FROM restitutions WHERE user_id = ?1) AS restitutions
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("user stats %s: %w", userID, err)
	}

	if st.OpenListings > 0 {
		st.Effectiveness = st.MatchedListings * 100 / st.OpenListings
	}
	return &st, nil
}

// GlobalStats counts rows across the site. Users are the distinct owners and
// restitution confirmers seen so far.
func (s *SQLiteStore) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	var st GlobalStats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			(SELECT COUNT(*) FROM (SELECT owner_id FROM listings UNION SELECT user_id FROM restitutions)) AS users,
			(SELECT COUNT(*) FROM listings) AS listings,
			(SELECT COUNT(*) FROM matches) AS matches,
			(SELECT COUNT(*) FROM restitutions) AS restitutions
	`)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}
	return &st, nil
}
