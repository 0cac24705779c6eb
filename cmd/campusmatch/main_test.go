package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elonfeng/campusmatch/pkg/match"
)

func TestRootCommands(t *testing.T) {
	want := []string{"serve", "run", "match", "matches", "import", "prune", "token", "add"}

	root := rootCmd()
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	if err := runAdd(addInput{title: "x", status: "returned", owner: "a"}); err == nil || !strings.Contains(err.Error(), "--status") {
		t.Errorf("returned status: err = %v", err)
	}
	if err := runAdd(addInput{title: "x", status: "lost", owner: "a", category: "phone"}); !errors.Is(err, match.ErrMissingField) {
		t.Errorf("missing fields: err = %v", err)
	}
}

func TestAddAndMatchRoundTrip(t *testing.T) {
	t.Setenv("CAMPUSMATCH_DB_PATH", filepath.Join(t.TempDir(), "cm.db"))
	t.Chdir(t.TempDir())

	if err := runAdd(addInput{title: "iPhone", description: "black iphone", category: "phone", location: "library", status: "lost", owner: "alice"}); err != nil {
		t.Fatalf("add lost: %v", err)
	}
	if err := runAdd(addInput{title: "Phone", description: "black phone", category: "phone", location: "library", status: "found", owner: "bob"}); err != nil {
		t.Fatalf("add found: %v", err)
	}
	if err := runMatch(false, -1); err != nil {
		t.Fatalf("match: %v", err)
	}
	if err := runMatches("alice", true); err != nil {
		t.Fatalf("matches: %v", err)
	}
	if err := runPrune(true, 101); err == nil {
		t.Error("expected range error")
	}
}
