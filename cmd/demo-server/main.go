package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"leaderboardkit/api/httpapi"
	"leaderboardkit/client"
	"leaderboardkit/engine"
	"leaderboardkit/realtime"
	"leaderboardkit/topn"
)

// A self-contained demo: an in-memory leaderboard served on :8080 while a few
// simulated players submit scores and the board is printed on every change.
func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewEventHub()
	svc := topn.New(topn.WithRealtime(hub), topn.WithDispatchMode(engine.DispatchAsync), topn.WithLogger(logger))
	defer svc.Close()

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           httpapi.NewMux(svc, hub, httpapi.Options{AllowCORSOrigin: "*", Logger: logger}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub, err := svc.Subscribe(ctx)
	if err != nil {
		slog.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer sub.Close()

	display := client.DisplayFunc(func(text string) { fmt.Printf("%s\n\n", text) })
	ui := client.New(svc, display, client.WithLogger(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return ui.Run(gctx, sub) })
	g.Go(func() error {
		slog.Info("starting demo server on :8080")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, player := range []string{"ada@example.com", "grace@example.com", "linus@example.com"} {
		g.Go(func() error { return play(gctx, ui, player) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
	ui.Wait()
}

// play submits a random score every few seconds. A roll of zero is rejected as invalid input.
func play(ctx context.Context, ui *client.Client, identity string) error {
	t := time.NewTicker(time.Duration(2+rand.IntN(3)) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			score := strconv.Itoa(rand.IntN(1000))
			ui.AddScore(ctx, identity, score)
		}
	}
}
