package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{6000050, "60,000.50"},
		{100, "1.00"},
		{5, "0.05"},
		{0, "0.00"},
		{-123456, "-1,234.56"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.amount); got != tc.want {
			t.Errorf("FormatAmount(%d): expected %q, got %q", tc.amount, tc.want, got)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	evt := Event{
		Type:      EventProposalExecuted,
		SubjectID: "p-1",
		GroupID:   "g1",
		Amount:    6000000,
		At:        time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	got := FormatEvent(evt)
	want := "ProposalExecuted p-1 group=g1 amount=60,000.00 at=2026-03-01 09:30:00"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWebhookNotifier_Publish(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	evt := Event{Type: EventVoteClosed, SubjectID: "v-1", At: time.Now().UTC()}
	if err := n.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if received.Type != EventVoteClosed || received.SubjectID != "v-1" {
		t.Errorf("unexpected delivery: %+v", received)
	}
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.MaxRetries = 2
	if err := n.Publish(context.Background(), Event{Type: EventAnomalyDetected, SubjectID: "a-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestWebhookNotifier_NoBackoffAfterFinalAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.MaxRetries = 0

	start := time.Now()
	err := n.Publish(context.Background(), Event{Type: EventAnomalyDetected, SubjectID: "a-2"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error after the final attempt")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	// A single failing attempt must return without sleeping its backoff.
	if elapsed >= time.Second {
		t.Errorf("publish took %v, backoff was slept after the final attempt", elapsed)
	}
}
