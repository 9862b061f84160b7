package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type captureSender struct {
	name   string
	titles []string
	err    error
}

func (s *captureSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *captureSender) Name() string { return s.name }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNotifyFiltersEvents(t *testing.T) {
	t.Parallel()

	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, []string{"arbitrage", " market_created "}, testLogger())

	ctx := context.Background()
	if err := n.Notify(ctx, EventArbitrage, "hit", "gap"); err != nil {
		t.Fatalf("Notify allowed event: %v", err)
	}
	if err := n.Notify(ctx, EventSeasonCompleted, "settled", "season 3"); err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}

	if len(s.titles) != 1 || s.titles[0] != "hit" {
		t.Errorf("delivered = %v, want only the allowed event", s.titles)
	}
}

func TestNotifyEmptyAllowListPassesAll(t *testing.T) {
	t.Parallel()

	s := &captureSender{name: "capture"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	for _, ev := range []Event{EventMarketCreated, EventMarketCreationFailed, EventArbitrage, EventSeasonCompleted} {
		if err := n.Notify(context.Background(), ev, string(ev), "m"); err != nil {
			t.Fatalf("Notify %s: %v", ev, err)
		}
	}
	if len(s.titles) != 4 {
		t.Errorf("delivered = %d, want all 4 without a configured filter", len(s.titles))
	}
}

func TestNotifyJoinsSenderFailures(t *testing.T) {
	t.Parallel()

	broken := &captureSender{name: "broken", err: errors.New("webhook down")}
	healthy := &captureSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), EventMarketCreated, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "webhook down") {
		t.Errorf("err = %v, want the broken sender's failure surfaced", err)
	}
	if len(healthy.titles) != 1 {
		t.Error("healthy sender skipped after another sender failed")
	}
}

func TestDiscordSenderPostsContent(t *testing.T) {
	t.Parallel()

	var got struct {
		Content string `json:"content"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Season completed", "season 3 markets settled"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Content != "**Season completed**\nseason 3 markets settled" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestDiscordSenderSurfacesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	err := d.Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want the status surfaced", err)
	}
}
