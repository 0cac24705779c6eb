package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/campusmatch/internal/store"
	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/elonfeng/campusmatch/pkg/metrics"
)

// DefaultThreshold is the exclusive lower bound a score must clear to be stored.
const DefaultThreshold = 30

var (
	// ErrStoreRead wraps listing read failures. Nothing is written.
	ErrStoreRead = errors.New("read listings")
	// ErrStoreWrite wraps match batch write failures.
	ErrStoreWrite = errors.New("write matches")
)

// ListingReader is the read side the generator needs from the listing store.
type ListingReader interface {
	ListListings(ctx context.Context, opts store.ListingListOpts) ([]listing.Listing, error)
}

// MatchWriter is the write side the generator needs from the match store.
type MatchWriter interface {
	UpsertMatches(ctx context.Context, batch []store.MatchCandidate) error
}

// Result summarises one generation pass.
type Result struct {
	Lost        int                    `json:"lost"`
	Found       int                    `json:"found"`
	Pairs       int                    `json:"pairs"`
	SelfSkipped int                    `json:"self_skipped"`
	Candidates  []store.MatchCandidate `json:"candidates"`
	Written     bool                   `json:"written"`
	Duration    time.Duration          `json:"duration"`
}

// Candidates pairs every lost listing with every found listing of another
// owner and keeps pairs scoring strictly above threshold. Returned listings
// take no part. Order follows the input: lost listings first, then found.
func Candidates(listings []listing.Listing, threshold int) []store.MatchCandidate {
	cands, _ := pair(listings, threshold)
	return cands
}

type pairStats struct {
	lost, found, pairs, self int
}

func pair(listings []listing.Listing, threshold int) ([]store.MatchCandidate, pairStats) {
	var lost, found []listing.Listing
	for _, l := range listings {
		switch l.Status {
		case listing.StatusLost:
			lost = append(lost, l)
		case listing.StatusFound:
			found = append(found, l)
		}
	}

	st := pairStats{lost: len(lost), found: len(found)}
	var cands []store.MatchCandidate

	for _, l := range lost {
		for _, f := range found {
			if l.OwnerID == f.OwnerID {
				st.self++
				continue
			}
			st.pairs++

			if s := Score(l, f); s > threshold {
				cands = append(cands, store.MatchCandidate{
					LostID:  l.ID,
					FoundID: f.ID,
					Score:   s,
				})
			}
		}
	}
	return cands, st
}

// Generator runs generation passes against injected stores.
type Generator struct {
	listings  ListingReader
	matches   MatchWriter
	threshold int
	metrics   *metrics.Recorder // optional, nil = disabled
}

// NewGenerator creates a generator. A threshold < 0 selects DefaultThreshold.
func NewGenerator(listings ListingReader, matches MatchWriter, threshold int, rec *metrics.Recorder) *Generator {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Generator{
		listings:  listings,
		matches:   matches,
		threshold: threshold,
		metrics:   rec,
	}
}

// Threshold returns the exclusive score bound in use.
func (g *Generator) Threshold() int { return g.threshold }

// Run reads every open listing, scores all eligible pairs and writes the
// qualifying candidates as one batch. The read completes before scoring
// starts and nothing is written until scoring is done. An empty candidate
// set issues no write.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	listings, err := g.listings.ListListings(ctx, store.ListingListOpts{
		Statuses: []listing.Status{listing.StatusLost, listing.StatusFound},
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		g.metrics.ObservePass(metrics.OutcomeReadError, 0, time.Since(start))
		return nil, err
	}

	cands, st := pair(listings, g.threshold)
	res := &Result{
		Lost:        st.lost,
		Found:       st.found,
		Pairs:       st.pairs,
		SelfSkipped: st.self,
		Candidates:  cands,
	}

	if len(cands) > 0 {
		if err := g.matches.UpsertMatches(ctx, cands); err != nil {
			err = fmt.Errorf("%w: %w", ErrStoreWrite, err)
			g.metrics.ObservePass(metrics.OutcomeWriteError, len(cands), time.Since(start))
			return nil, err
		}
		res.Written = true
	}

	res.Duration = time.Since(start)
	g.metrics.ObservePass(metrics.OutcomeOK, len(cands), res.Duration)

	slog.Debug("match pass complete",
		"lost", res.Lost, "found", res.Found, "pairs", res.Pairs,
		"self_skipped", res.SelfSkipped, "candidates", len(cands),
		"duration", res.Duration)
	return res, nil
}
