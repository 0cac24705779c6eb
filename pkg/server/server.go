package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/campusmatch/internal/store"
	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/elonfeng/campusmatch/pkg/match"
	"github.com/elonfeng/campusmatch/pkg/metrics"
)

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	generator *match.Generator
	metrics   *metrics.Recorder
	jwtSecret string
	port      int
}

// New creates a new HTTP server. Authenticated endpoints reject every
// request when jwtSecret is empty.
func New(s store.Store, gen *match.Generator, rec *metrics.Recorder, jwtSecret string, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:     s,
		generator: gen,
		metrics:   rec,
		jwtSecret: jwtSecret,
		port:      port,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/v1/listings", s.handleListListings)
	mux.HandleFunc("GET /api/v1/listings/{id}", s.handleGetListing)
	mux.HandleFunc("POST /api/v1/listings", s.requireAuth(s.handleCreateListing))
	mux.HandleFunc("PATCH /api/v1/listings/{id}", s.requireAdmin(s.handleUpdateStatus))
	mux.HandleFunc("POST /api/v1/listings/{id}/restitution", s.requireAuth(s.handleRestitution))

	mux.HandleFunc("GET /api/v1/matches", s.requireAuth(s.handleMatches))
	mux.HandleFunc("POST /api/v1/matches/generate", s.requireAuth(s.handleGenerate))
	mux.HandleFunc("POST /api/v1/matches/prune", s.requireAdmin(s.handlePrune))

	mux.HandleFunc("GET /api/v1/stats", s.requireAuth(s.handleUserStats))
	mux.HandleFunc("GET /api/v1/admin/stats", s.requireAdmin(s.handleGlobalStats))

	return logRequests(mux)
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("campusmatch server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	opts := store.ListingListOpts{Limit: 100}

	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := listing.ParseStatus(strings.TrimSpace(part))
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			opts.Statuses = append(opts.Statuses, st)
		}
	}
	opts.OwnerID = r.URL.Query().Get("owner")
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}

	listings, err := s.store.ListListings(r.Context(), opts)
	if err != nil {
		s.internalError(w, "list listings", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  listings,
		"count": len(listings),
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetListing(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.internalError(w, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type createListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	DateLost    string `json:"date_lost"` // YYYY-MM-DD or RFC 3339
	Status      string `json:"status"`
	ImageURL    string `json:"image_url"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())

	var req createListingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := listing.StatusLost
	if req.Status != "" {
		st, ok := listing.ParseStatus(req.Status)
		if !ok || !st.Open() {
			writeError(w, http.StatusBadRequest, "status must be lost or found")
			return
		}
		status = st
	}

	date, err := parseDate(req.DateLost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_lost")
		return
	}

	l := &listing.Listing{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Location:    strings.TrimSpace(req.Location),
		DateLost:    date,
		Status:      status,
		OwnerID:     claims.UserID,
		ImageURL:    req.ImageURL,
	}
	if l.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := match.Validate(*l); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateListing(r.Context(), l); err != nil {
		s.internalError(w, "create listing", err)
		return
	}

	slog.Info("listing created", "id", l.ID, "status", l.Status, "owner", l.OwnerID)
	writeJSON(w, http.StatusCreated, l)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, ok := listing.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
		return
	}

	l, err := s.store.GetListing(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.internalError(w, "get listing", err)
		return
	}
	if !l.Status.CanTransition(to) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot change status from %s to %s", l.Status, to))
		return
	}

	if err := s.store.UpdateListingStatus(r.Context(), id, to); err != nil {
		s.internalError(w, "update listing status", err)
		return
	}
	l.Status = to

	slog.Info("listing status updated", "id", id, "status", to, "by", getClaims(r.Context()).UserID)
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleRestitution(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	id := r.PathValue("id")

	l, err := s.store.GetListing(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		s.internalError(w, "get listing", err)
		return
	}
	if l.OwnerID != claims.UserID && !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "only the owner can confirm a restitution")
		return
	}

	rest, err := s.store.ConfirmRestitution(r.Context(), id, claims.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
		return
	case errors.Is(err, store.ErrAlreadyReturned):
		writeError(w, http.StatusConflict, "listing already returned")
		return
	case err != nil:
		s.internalError(w, "confirm restitution", err)
		return
	}

	slog.Info("restitution confirmed", "listing", id, "user", claims.UserID)
	writeJSON(w, http.StatusCreated, rest)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())

	userID := claims.UserID
	if u := r.URL.Query().Get("user"); u != "" && u != userID {
		if !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		userID = u
	}

	matches, err := s.store.ListMatchesForUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, "list matches", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  matches,
		"count": len(matches),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	res, err := s.generator.Run(r.Context())
	if err != nil {
		s.internalError(w, "generate matches", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lost":         res.Lost,
		"found":        res.Found,
		"pairs":        res.Pairs,
		"self_skipped": res.SelfSkipped,
		"candidates":   len(res.Candidates),
		"written":      res.Written,
		"duration_ms":  res.Duration.Milliseconds(),
	})
}

type pruneRequest struct {
	Returned  *bool `json:"returned"`
	AtOrBelow int   `json:"at_or_below"`
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := store.PruneOpts{Returned: true, AtOrBelow: req.AtOrBelow}
	if req.Returned != nil {
		opts.Returned = *req.Returned
	}
	if opts.AtOrBelow < 0 || opts.AtOrBelow > match.MaxScore {
		writeError(w, http.StatusBadRequest, "at_or_below must be within 0-100")
		return
	}

	n, err := s.store.PruneMatches(r.Context(), opts)
	if err != nil {
		s.internalError(w, "prune matches", err)
		return
	}
	s.metrics.ObservePrune(n)

	slog.Info("matches pruned", "removed", n, "returned", opts.Returned, "at_or_below", opts.AtOrBelow)
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())

	st, err := s.store.UserStats(r.Context(), claims.UserID)
	if err != nil {
		s.internalError(w, "user stats", err)
		return
	}
	rests, err := s.store.ListRestitutions(r.Context(), claims.UserID)
	if err != nil {
		s.internalError(w, "list restitutions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":        st,
		"restitutions": rests,
	})
}

func (s *Server) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GlobalStats(r.Context())
	if err != nil {
		s.internalError(w, "global stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
