package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/campusmatch/internal/auth"
	"github.com/elonfeng/campusmatch/internal/config"
	"github.com/elonfeng/campusmatch/internal/scheduler"
	"github.com/elonfeng/campusmatch/internal/store"
	"github.com/elonfeng/campusmatch/pkg/feed"
	"github.com/elonfeng/campusmatch/pkg/listing"
	"github.com/elonfeng/campusmatch/pkg/match"
	"github.com/elonfeng/campusmatch/pkg/metrics"
	"github.com/elonfeng/campusmatch/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	})))
	return cfg, nil
}

// openStore loads config and opens the database.
func openStore() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, db, nil
}

func buildImporter(cfg *config.Config, db store.Store, rec *metrics.Recorder) *feed.Importer {
	feeds := make([]feed.Feed, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		feeds[i] = feed.Feed{Name: f.Name, URL: f.URL, Category: f.Category, Location: f.Location}
	}
	return feed.NewImporter(feeds, db, rec)
}

func runServe(port int) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}
	if cfg.Server.JWTSecret == "" {
		slog.Warn("server.jwt_secret is empty; authenticated endpoints are disabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := metrics.New()
	gen := match.NewGenerator(db, db, cfg.Matching.Threshold, rec)
	return server.New(db, gen, rec, cfg.Server.JWTSecret, port).ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := metrics.New()
	gen := match.NewGenerator(db, db, cfg.Matching.Threshold, rec)

	sched := scheduler.New(gen, buildImporter(cfg, db, rec), db, rec,
		cfg.Schedule.ParseMatchInterval(),
		cfg.Matching.PruneReturned,
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler error", "error", err)
		}
	}()

	err = server.New(db, gen, rec, cfg.Server.JWTSecret, port).ListenAndServe(ctx)
	fmt.Fprintln(os.Stderr, "\nshutting down...")
	return err
}

func runMatch(jsonOutput bool, threshold int) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if threshold < 0 {
		threshold = cfg.Matching.Threshold
	}

	res, err := match.NewGenerator(db, db, threshold, nil).Run(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(os.Stderr, "scored %d pairs (%d lost, %d found, %d same-owner skipped)\n",
		res.Pairs, res.Lost, res.Found, res.SelfSkipped)
	fmt.Fprintf(os.Stderr, "stored %d matches above %d in %s\n",
		len(res.Candidates), threshold, res.Duration.Round(time.Millisecond))
	return nil
}

func runMatches(user string, jsonOutput bool) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	matches, err := db.ListMatchesForUser(context.Background(), user)
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Println("no matches found (try generating first: campusmatch match)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tLOST\tFOUND\tCATEGORY\tLOCATION")
	for _, m := range matches {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			m.Score, m.Lost.Title, m.Found.Title, m.Found.Category, m.Found.Location)
	}
	return w.Flush()
}

func runImport() error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(cfg.Feeds) == 0 {
		return errors.New("no feeds configured")
	}

	counts, err := buildImporter(cfg, db, nil).Import(context.Background())
	total := 0
	for _, f := range cfg.Feeds {
		n, ok := counts[f.Name]
		if !ok {
			fmt.Fprintf(os.Stderr, "  %s: failed\n", f.Name)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %d listings\n", f.Name, n)
		total += n
	}
	fmt.Fprintf(os.Stderr, "\ntotal: %d listings from %d feeds\n", total, len(counts))
	return err
}

func runPrune(returned bool, atOrBelow int) error {
	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if atOrBelow < 0 || atOrBelow > match.MaxScore {
		return fmt.Errorf("--at-or-below must be within 0-%d", match.MaxScore)
	}

	n, err := db.PruneMatches(context.Background(), store.PruneOpts{Returned: returned, AtOrBelow: atOrBelow})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "removed %d matches\n", n)
	return nil
}

func runToken(user, role string, ttl time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is not set (or CAMPUSMATCH_JWT_SECRET)")
	}

	tok, err := auth.GenerateToken(cfg.Server.JWTSecret, user, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

type addInput struct {
	title, description, category, location string
	date, status, owner                     string
}

func runAdd(in addInput) error {
	status, ok := listing.ParseStatus(strings.ToLower(in.status))
	if !ok || !status.Open() {
		return fmt.Errorf("--status must be lost or found, got %q", in.status)
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if in.date != "" {
		d, err := time.Parse(time.DateOnly, in.date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		date = d
	}

	l := &listing.Listing{
		Title:       in.title,
		Description: in.description,
		Category:    in.category,
		Location:    in.location,
		DateLost:    date,
		Status:      status,
		OwnerID:     in.owner,
	}
	if err := match.Validate(*l); err != nil {
		return err
	}

	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CreateListing(context.Background(), l); err != nil {
		return err
	}
	fmt.Println(l.ID)
	return nil
}
