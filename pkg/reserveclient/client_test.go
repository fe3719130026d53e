package reserveclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmitMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reservations" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "reservation conflict: ROLE_TAKEN", "rule": "ROLE_TAKEN"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", &http.Client{Timeout: 2 * time.Second})

	_, err := c.Submit(context.Background(), "alice", "Minister of Health", "2026-03-01T14:00")
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *ConflictError", err)
	}
	if ce.Rule != "ROLE_TAKEN" {
		t.Fatalf("rule = %q, want ROLE_TAKEN", ce.Rule)
	}
}

func TestSubmitWithRetry_NoRetryOnConflict(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "reservation conflict: DUPLICATE", "rule": "DUPLICATE"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", &http.Client{Timeout: 2 * time.Second})

	_, err := c.SubmitWithRetry(context.Background(), "alice", "Minister of Health", "2026-03-01T14:00", SubmitOptions{
		MaxRetries: 10,
		MinRetry:   time.Millisecond,
		JitterFrac: 0, // deterministic
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *ConflictError", err)
	}
	if calls != 1 {
		t.Fatalf("conflicts must be terminal: %d calls", calls)
	}
}

func TestSubmitWithRetry_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "transient"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": "r-1",
			"name": "alice",
			"role": "Minister of Health",
			"slot_time": "2026-03-01T14:00:00Z",
			"status": "pending"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", &http.Client{Timeout: 2 * time.Second})

	rec, err := c.SubmitWithRetry(context.Background(), "alice", "Minister of Health", "2026-03-01T14:00", SubmitOptions{
		MaxRetries: 10,
		MinRetry:   time.Millisecond,
		MaxRetry:   5 * time.Millisecond,
		JitterFrac: 0,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if rec.ID != "r-1" || rec.Status != "pending" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestApproveMapsStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/reservations/gone/approve":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"id": "gone", "reason": "STALE"}`))
		case "/v1/reservations/raced/approve":
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"id": "raced", "reason": "NOW_CONFLICTING"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", &http.Client{Timeout: 2 * time.Second})

	err := c.Approve(context.Background(), "gone")
	var se *StaleError
	if !errors.As(err, &se) || se.Reason != "STALE" {
		t.Fatalf("got %v, want StaleError/STALE", err)
	}

	err = c.Approve(context.Background(), "raced")
	if !errors.As(err, &se) || se.Reason != "NOW_CONFLICTING" {
		t.Fatalf("got %v, want StaleError/NOW_CONFLICTING", err)
	}
}

func TestGridPollerEmitsAndStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"day": "2026-03-01", "slots": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", &http.Client{Timeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	updates := c.StartGridPoller(ctx, GridPollerOptions{Interval: 5 * time.Millisecond, Day: "2026-03-01"})

	select {
	case u := <-updates:
		if u.Err != nil {
			t.Fatalf("poll error: %v", u.Err)
		}
		if u.Snapshot.Day != "2026-03-01" {
			t.Fatalf("day = %q", u.Snapshot.Day)
		}
	case <-time.After(time.Second):
		t.Fatal("no update within 1s")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return // channel closed after cancel
			}
		case <-deadline:
			t.Fatal("poller did not stop after cancel")
		}
	}
}
