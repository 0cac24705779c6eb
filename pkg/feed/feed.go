// Package feed imports found items published as RSS/Atom feeds, such as a
// campus lost-property office, as found listings.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/elonfeng/campusmatch/pkg/match"
	"github.com/elonfeng/campusmatch/pkg/metrics"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

// OwnerPrefix prefixes the owner ID of imported listings.
const OwnerPrefix = "feed:"

const maxDescription = 500

// Feed is a named feed of found items.
type Feed struct {
	Name     string
	URL      string
	Category string // fallback when an entry has no category
	Location string
}

// Owner returns the owner ID assigned to the feed's listings.
func (f Feed) Owner() string { return OwnerPrefix + f.Name }

// ListingUpserter stores imported listings.
type ListingUpserter interface {
	UpsertListings(ctx context.Context, ls []listing.Listing) error
}

// Importer fetches feeds and upserts their entries as found listings.
type Importer struct {
	client  *http.Client
	parser  *gofeed.Parser
	feeds   []Feed
	store   ListingUpserter
	metrics *metrics.Recorder
}

// NewImporter creates an importer. rec may be nil.
func NewImporter(feeds []Feed, s ListingUpserter, rec *metrics.Recorder) *Importer {
	return &Importer{
		client:  &http.Client{Timeout: 30 * time.Second},
		parser:  gofeed.NewParser(),
		feeds:   feeds,
		store:   s,
		metrics: rec,
	}
}

// Feeds returns the configured feeds.
func (im *Importer) Feeds() []Feed { return im.feeds }

// Import fetches every feed and stores its entries. A failing feed does not
// stop the others; the failures are joined into the returned error. The map
// holds the number of listings stored per feed name.
func (im *Importer) Import(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(im.feeds))
	var errs []error

	for _, f := range im.feeds {
		ls, err := im.Fetch(ctx, f)
		if err != nil {
			slog.Warn("feed fetch failed", "feed", f.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(ls) == 0 {
			counts[f.Name] = 0
			continue
		}
		if err := im.store.UpsertListings(ctx, ls); err != nil {
			err = fmt.Errorf("store feed %s: %w", f.Name, err)
			slog.Warn("feed store failed", "feed", f.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		counts[f.Name] = len(ls)
		im.metrics.ObserveImport(f.Name, len(ls))
		slog.Debug("feed imported", "feed", f.Name, "listings", len(ls))
	}

	return counts, errors.Join(errs...)
}

// Fetch downloads and parses one feed into found listings.
func (im *Importer) Fetch(ctx context.Context, f Feed) ([]listing.Listing, error) {
	if strings.TrimSpace(f.Location) == "" {
		return nil, fmt.Errorf("feed %s: location is required", f.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", f.Name, err)
	}
	req.Header.Set("User-Agent", "campusmatch/1.0")

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", f.Name, resp.StatusCode)
	}

	parsed, err := im.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.Name, err)
	}

	now := time.Now().UTC()
	var ls []listing.Listing
	for _, entry := range parsed.Items {
		l := ToListing(f, entry, now)
		if err := match.Validate(l); err != nil {
			slog.Debug("feed entry skipped", "feed", f.Name, "title", entry.Title, "error", err)
			continue
		}
		ls = append(ls, l)
	}
	if skipped := len(parsed.Items) - len(ls); skipped > 0 {
		slog.Warn("feed entries skipped", "feed", f.Name, "skipped", skipped, "kept", len(ls))
	}
	return ls, nil
}

// ToListing converts a feed entry into a found listing. The ID is derived
// from the feed name and entry GUID, so re-importing updates in place.
func ToListing(f Feed, entry *gofeed.Item, now time.Time) listing.Listing {
	key := entry.GUID
	if key == "" {
		key = entry.Link
	}
	if key == "" {
		key = entry.Title
	}

	date := now
	if entry.PublishedParsed != nil {
		date = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		date = entry.UpdatedParsed.UTC()
	}

	category := f.Category
	if len(entry.Categories) > 0 && strings.TrimSpace(entry.Categories[0]) != "" {
		category = strings.TrimSpace(entry.Categories[0])
	}

	description := entry.Description
	if description == "" {
		description = entry.Content
	}

	return listing.Listing{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(f.Name+"\x00"+key)).String(),
		Title:       strings.TrimSpace(entry.Title),
		Description: truncate(strings.TrimSpace(description), maxDescription),
		Category:    category,
		Location:    f.Location,
		DateLost:    date,
		Status:      listing.StatusFound,
		OwnerID:     f.Owner(),
		ImageURL:    imageURL(entry),
		CreatedAt:   now,
	}
}

func imageURL(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
