package transcriptstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ambiware-labs/dictate/internal/config"
	"github.com/ambiware-labs/dictate/internal/session"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.StoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "sessions.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	s := openStore(t, config.StoreConfig{})
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first transcript", "second transcript"} {
		rec := session.Record{
			SessionID: []string{"s-1", "s-2"}[i],
			DeviceUID: "core/USB Mic",
			Text:      text,
			StartedAt: now.Add(time.Duration(i) * time.Minute),
			EndedAt:   now.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := s.SaveSession(ctx, rec); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	records, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].SessionID != "s-2" {
		t.Fatalf("expected newest first, got %q", records[0].SessionID)
	}
	if records[1].Text != "first transcript" {
		t.Fatalf("unexpected text %q", records[1].Text)
	}
	if !records[0].EndedAt.Equal(now.Add(time.Minute + 30*time.Second)) {
		t.Fatalf("ended_at round trip: %v", records[0].EndedAt)
	}
}

func TestSaveUpsertsOnSessionID(t *testing.T) {
	s := openStore(t, config.StoreConfig{})
	ctx := context.Background()

	rec := session.Record{SessionID: "s-1", Text: "draft", StartedAt: time.Now(), EndedAt: time.Now()}
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Text = "final"
	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}

	records, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Text != "final" {
		t.Fatalf("upsert failed: %+v", records)
	}
}

func TestPruneByAgeAndCount(t *testing.T) {
	s := openStore(t, config.StoreConfig{RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, rec := range []session.Record{
		{SessionID: "old", Text: "old", StartedAt: old, EndedAt: old},
		{SessionID: "mid", Text: "mid", StartedAt: recent, EndedAt: recent},
		{SessionID: "new", Text: "new", StartedAt: recent.Add(time.Hour), EndedAt: recent.Add(time.Hour)},
	} {
		if err := s.SaveSession(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	s.clock = func() time.Time { return recent.Add(2 * time.Hour) }
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "new" {
		t.Fatalf("prune kept %+v", records)
	}
}
