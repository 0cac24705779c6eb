package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyReturned is returned when a restitution targets a returned listing.
var ErrAlreadyReturned = errors.New("listing already returned")

// MatchCandidate is a scored pair produced by a generation pass.
type MatchCandidate struct {
	LostID  string `json:"lost_id" db:"lost_id"`
	FoundID string `json:"found_id" db:"found_id"`
	Score   int    `json:"score" db:"score"`
}

// Match is a persisted pairing between a lost and a found listing.
type Match struct {
	ID        string    `db:"id" json:"id"`
	LostID    string    `db:"lost_id" json:"lost_id"`
	FoundID   string    `db:"found_id" json:"found_id"`
	Score     int       `db:"score" json:"score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Joined listings (only populated by ListMatchesForUser).
	Lost  listing.Listing `db:"lost" json:"lost"`
	Found listing.Listing `db:"found" json:"found"`
}

// HasOwner reports whether userID owns either side of the match.
func (m *Match) HasOwner(userID string) bool {
	return m.Lost.OwnerID == userID || m.Found.OwnerID == userID
}

// Restitution records the confirmed handover of a listed item.
type Restitution struct {
	ID              string    `db:"id" json:"id"`
	ListingID       string    `db:"listing_id" json:"listing_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Confirmed       bool      `db:"confirmed" json:"confirmed"`
	DateRestitution time.Time `db:"date_restitution" json:"date_restitution"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	ListingTitle string `db:"listing_title" json:"listing_title,omitempty"`
}

// ListingListOpts controls listing queries.
type ListingListOpts struct {
	Statuses []listing.Status
	OwnerID  string
	Limit    int // 0 = no limit
}

// PruneOpts selects which stale matches PruneMatches removes.
type PruneOpts struct {
	// Returned removes matches referencing a returned listing.
	Returned bool
	// AtOrBelow removes matches whose score is <= AtOrBelow when > 0.
	AtOrBelow int
}

// UserStats summarises one user's activity.
type UserStats struct {
	Listings        int `db:"listings" json:"listings"`
	OpenListings    int `db:"open_listings" json:"open_listings"`
	MatchedListings int `db:"matched_listings" json:"matched_listings"`
	Restitutions    int `db:"restitutions" json:"restitutions"`
	// Effectiveness is the percentage of open listings with at least one match.
	Effectiveness int `db:"-" json:"effectiveness"`
}

// GlobalStats holds site-wide counters.
type GlobalStats struct {
	Users        int `db:"users" json:"users"`
	Listings     int `db:"listings" json:"listings"`
	Matches      int `db:"matches" json:"matches"`
	Restitutions int `db:"restitutions" json:"restitutions"`
}

// Store is the persistence interface.
type Store interface {
	CreateListing(ctx context.Context, l *listing.Listing) error
	UpsertListing(ctx context.Context, l *listing.Listing) error
	UpsertListings(ctx context.Context, ls []listing.Listing) error
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	ListListings(ctx context.Context, opts ListingListOpts) ([]listing.Listing, error)
	UpdateListingStatus(ctx context.Context, id string, status listing.Status) error

	UpsertMatches(ctx context.Context, batch []MatchCandidate) error
	ListMatchesForUser(ctx context.Context, userID string) ([]Match, error)
	PruneMatches(ctx context.Context, opts PruneOpts) (int64, error)

	ConfirmRestitution(ctx context.Context, listingID, userID string) (*Restitution, error)
	ListRestitutions(ctx context.Context, userID string) ([]Restitution, error)

	UserStats(ctx context.Context, userID string) (*UserStats, error)
	GlobalStats(ctx context.Context) (*GlobalStats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	// Immediate transactions take the write lock up front so concurrent
	// batches serialize instead of failing on lock upgrade.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Every connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
