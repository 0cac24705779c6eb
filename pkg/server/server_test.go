package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elonfeng/campusmatch/internal/auth"
	"github.com/elonfeng/campusmatch/internal/store"
	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/elonfeng/campusmatch/pkg/match"
	"github.com/elonfeng/campusmatch/pkg/metrics"
)

const testSecret = "test-secret"

type testEnv struct {
	store   *store.SQLiteStore
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rec := metrics.New()
	srv := New(s, match.NewGenerator(s, s, -1, rec), rec, testSecret, 0)
	return &testEnv{store: s, handler: srv.Handler()}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, userID, role, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (e *testEnv) createListing(t *testing.T, tok, body string) listing.Listing {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/listings", tok, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: status %d body %s", rec.Code, rec.Body.String())
	}
	var l listing.Listing
	decode(t, rec, &l)
	return l
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	if rec := e.do(t, http.MethodGet, "/api/v1/matches", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/matches", "garbage", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", rec.Code)
	}
	alice := token(t, "alice", auth.RoleRegistered)
	if rec := e.do(t, http.MethodGet, "/api/v1/admin/stats", alice, ""); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin: status %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/v1/matches/prune", alice, ""); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin prune: status %d, want 403", rec.Code)
	}
}

func TestCreateListingValidation(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.RoleRegistered)

	tests := []struct {
		name string
		body string
	}{
		{"missing location", `{"title":"x","category":"phone","description":"black"}`},
		{"returned status", `{"title":"x","category":"phone","location":"gym","description":"black","status":"returned"}`},
		{"bad date", `{"title":"x","category":"phone","location":"gym","description":"black","date_lost":"yesterday"}`},
		{"no title", `{"category":"phone","location":"gym","description":"black"}`},
		{"unknown field", `{"title":"x","colour":"red"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := e.do(t, http.MethodPost, "/api/v1/listings", alice, tt.body); rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMatchFlow(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.RoleRegistered)
	bob := token(t, "bob", auth.RoleRegistered)
	admin := token(t, "root", auth.RoleAdmin)

	lost := e.createListing(t, alice, `{"title":"iPhone","category":"phone","location":"library","description":"black iphone charger included","date_lost":"2026-10-01"}`)
	found := e.createListing(t, bob, `{"title":"Phone","category":"Phone","location":"Library","description":"found a black phone near desk","status":"found"}`)
	if lost.OwnerID != "alice" || lost.Status != listing.StatusLost {
		t.Fatalf("lost listing = %+v", lost)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/matches/generate", alice, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("generate: status %d body %s", rec.Code, rec.Body.String())
	}
	var gen map[string]any
	decode(t, rec, &gen)
	if gen["candidates"].(float64) != 1 {
		t.Fatalf("generate = %v", gen)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/matches", bob, "")
	var resp struct {
		Data  []store.Match `json:"data"`
		Count int           `json:"count"`
	}
	decode(t, rec, &resp)
	if resp.Count != 1 || resp.Data[0].Score != 80 || resp.Data[0].Lost.ID != lost.ID || resp.Data[0].Found.ID != found.ID {
		t.Fatalf("matches = %+v", resp)
	}

	// Another user's matches are admin-only.
	if rec := e.do(t, http.MethodGet, "/api/v1/matches?user=alice", bob, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign matches: status %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/matches?user=alice", admin, ""); rec.Code != http.StatusOK {
		t.Errorf("admin matches: status %d", rec.Code)
	}

	// Only the owner confirms a restitution.
	if rec := e.do(t, http.MethodPost, "/api/v1/listings/"+lost.ID+"/restitution", bob, ""); rec.Code != http.StatusForbidden {
		t.Errorf("foreign restitution: status %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/v1/listings/"+lost.ID+"/restitution", alice, ""); rec.Code != http.StatusCreated {
		t.Fatalf("restitution: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodPost, "/api/v1/listings/"+lost.ID+"/restitution", alice, ""); rec.Code != http.StatusConflict {
		t.Errorf("second restitution: status %d, want 409", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/v1/listings/nope/restitution", alice, ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing listing: status %d, want 404", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/stats", alice, "")
	var stats struct {
		Stats        store.UserStats     `json:"stats"`
		Restitutions []store.Restitution `json:"restitutions"`
	}
	decode(t, rec, &stats)
	if stats.Stats.Listings != 1 || stats.Stats.Restitutions != 1 || len(stats.Restitutions) != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// The stale match survives until pruned.
	rec = e.do(t, http.MethodPost, "/api/v1/matches/prune", admin, "")
	var pruned map[string]int
	decode(t, rec, &pruned)
	if pruned["removed"] != 1 {
		t.Errorf("prune = %v, want 1 removed", pruned)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/admin/stats", admin, "")
	var global store.GlobalStats
	decode(t, rec, &global)
	if global.Listings != 2 || global.Matches != 0 || global.Restitutions != 1 {
		t.Errorf("global = %+v", global)
	}
}

func TestListListings(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for _, l := range []listing.Listing{
		{Title: "a", Category: "c", Location: "l", Description: "d", OwnerID: "alice", Status: listing.StatusLost},
		{Title: "b", Category: "c", Location: "l", Description: "d", OwnerID: "bob", Status: listing.StatusFound},
	} {
		l := l
		if err := e.store.CreateListing(ctx, &l); err != nil {
			t.Fatalf("CreateListing: %v", err)
		}
	}

	var resp struct {
		Count int `json:"count"`
	}
	decode(t, e.do(t, http.MethodGet, "/api/v1/listings?status=found", "", ""), &resp)
	if resp.Count != 1 {
		t.Errorf("found count = %d, want 1", resp.Count)
	}
	decode(t, e.do(t, http.MethodGet, "/api/v1/listings?owner=alice", "", ""), &resp)
	if resp.Count != 1 {
		t.Errorf("alice count = %d, want 1", resp.Count)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/listings?status=stolen", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d, want 400", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/listings/missing", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing listing: %d, want 404", rec.Code)
	}
}

func TestUpdateListingStatus(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.RoleRegistered)
	admin := token(t, "root", auth.RoleAdmin)

	l := e.createListing(t, alice, `{"title":"Keys","category":"keys","location":"gym","description":"silver keyring"}`)
	path := "/api/v1/listings/" + l.ID

	if rec := e.do(t, http.MethodPatch, path, alice, `{"status":"returned"}`); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin: status %d, want 403", rec.Code)
	}
	if rec := e.do(t, http.MethodPatch, path, admin, `{"status":"stolen"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: %d, want 400", rec.Code)
	}
	if rec := e.do(t, http.MethodPatch, path, admin, `{"status":"found"}`); rec.Code != http.StatusConflict {
		t.Errorf("lost -> found: %d, want 409", rec.Code)
	}
	if rec := e.do(t, http.MethodPatch, "/api/v1/listings/missing", admin, `{"status":"returned"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing listing: %d, want 404", rec.Code)
	}

	rec := e.do(t, http.MethodPatch, path, admin, `{"status":"returned"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("lost -> returned: status %d body %s", rec.Code, rec.Body.String())
	}
	got, err := e.store.GetListing(context.Background(), l.ID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Status != listing.StatusReturned {
		t.Errorf("stored status = %q, want returned", got.Status)
	}

	if rec := e.do(t, http.MethodPatch, path, admin, `{"status":"lost"}`); rec.Code != http.StatusConflict {
		t.Errorf("returned -> lost: %d, want 409", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.RoleRegistered)
	e.do(t, http.MethodPost, "/api/v1/matches/generate", alice, "")

	rec := e.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "campusmatch_match_passes_total") {
		t.Fatalf("metrics: status %d", rec.Code)
	}
}
