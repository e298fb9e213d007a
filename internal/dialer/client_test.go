package dialer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient() *Client {
	return NewClient(2*time.Second, zerolog.New(&bytes.Buffer{}))
}

func TestPollStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("function"); got != "agents_status" {
			t.Errorf("expected function=agents_status, got %s", got)
		}
		fmt.Fprint(w, "1001|READY||ACTIVE\n1002|INCALL|DEAD|ACTIVE\nmalformed line\n")
	}))
	defer srv.Close()

	statuses, err := newTestClient().PollStatuses(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].ExternalID != "1001" || statuses[0].Status != "READY" {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[1].SubStatus != "DEAD" {
		t.Errorf("expected subStatus DEAD, got %s", statuses[1].SubStatus)
	}
}

func TestPollStatusesErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ERROR: no agents logged in\n")
	}))
	defer srv.Close()

	_, err := newTestClient().PollStatuses(context.Background(), srv.URL)
	if !errors.Is(err, ErrErrorPayload) {
		t.Fatalf("expected ErrErrorPayload, got %v", err)
	}
}

func TestPollStatusesTransportError(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused

	_, err := newTestClient().PollStatuses(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	if errors.Is(err, ErrErrorPayload) {
		t.Fatal("transport error should not be an error payload")
	}
}

func TestIsLoggedIn(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"logged in", "1\n", true},
		{"logged out", "0\n", false},
		{"error payload means not logged in", "ERROR: agent not found\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("agent_user"); got != "1001" {
					t.Errorf("expected agent_user=1001, got %s", got)
				}
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			got, err := newTestClient().IsLoggedIn(context.Background(), "1001", srv.URL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLogoutRetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "SUCCESS: agent logged out\n")
	}))
	defer srv.Close()

	if err := newTestClient().Logout(context.Background(), "1001", srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts < 2 {
		t.Errorf("expected a retry after transient failure, got %d attempts", attempts)
	}
}
