package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"leaderboardkit/core"
	"leaderboardkit/leaderboard"
)

func submit(capacity int, id string, score int64) core.Mutation {
	return leaderboard.Mutation(leaderboard.AddScore(capacity, core.ScoreEntry{Identity: core.Identity(id), Score: score}))
}

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	if _, _, err := store.Transact(ctx, "Leaders", submit(2, "a@x.com", 10)); err != nil {
		t.Fatalf("transact: %v", err)
	}
	if _, _, err := store.Transact(ctx, "Leaders", submit(2, "b@x.com", 5)); err != nil {
		t.Fatalf("transact: %v", err)
	}
	_, aborted, err := store.Transact(ctx, "Leaders", submit(2, "c@x.com", 3))
	if err != nil || !aborted {
		t.Fatalf("expected abort, got aborted=%v err=%v", aborted, err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	// reload
	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	raw, err := reloaded.Get(ctx, "Leaders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	entries, corrupt, err := leaderboard.Decode(raw)
	if err != nil || len(corrupt) != 0 {
		t.Fatalf("decode: %v %v", err, corrupt)
	}
	if len(entries) != 2 || entries[0].Identity != "a@x.com" || entries[1].Score != 5 {
		t.Fatalf("unexpected entries after reload: %+v", entries)
	}
}

func TestStoreLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("expected load error")
	}
}

func TestStoreWatch(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := store.Watch(ctx, "Leaders")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Transact(ctx, "Leaders", submit(5, "a@x.com", 1)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
}

func TestStoreConcurrentWritersInOneProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	var g errgroup.Group
	for i := 1; i <= 20; i++ {
		g.Go(func() error {
			_, _, err := store.Transact(ctx, "Leaders", submit(50, fmt.Sprintf("p%d@x.com", i), int64(i)))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("transact: %v", err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	raw, _ := reloaded.Get(ctx, "Leaders")
	entries, _, err := leaderboard.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("want 20 entries persisted, got %d", len(entries))
	}
}
