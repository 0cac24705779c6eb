package listing

import (
	"time"
)

// Status is the lifecycle state of a listing.
type Status string

const (
	StatusLost     Status = "lost"
	StatusFound    Status = "found"
	StatusReturned Status = "returned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusLost, StatusFound, StatusReturned:
		return true
	}
	return false
}

// Open reports whether the listing can still take part in matching.
func (s Status) Open() bool {
	return s == StatusLost || s == StatusFound
}

// CanTransition reports whether a listing may move from s to to. Open
// listings may only become returned; returned is final.
func (s Status) CanTransition(to Status) bool {
	if !to.Valid() {
		return false
	}
	return s == to || (s.Open() && to == StatusReturned)
}

// Listing is one reported lost or found item.
type Listing struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	Location    string    `json:"location" db:"location"`
	DateLost    time.Time `json:"date_lost" db:"date_lost"`
	Status      Status    `json:"status" db:"status"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ParseStatus converts s to a Status, returning false if it is unknown.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}
