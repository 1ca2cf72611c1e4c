package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizsync/internal/domain"
)

type staticSession struct {
	session *domain.Session
	err     error
}

func (s staticSession) Session(context.Context) (*domain.Session, error) {
	return s.session, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RateLimit:      1000,
		RateBurst:      10,
		UserAgent:      "bizsync-test",
	}, staticSession{session: &domain.Session{OwnerID: "U1", Token: "tok"}}, logger)
}

func TestClient_PushOfferings(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sync/offerings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"accepted":    []string{"o1"},
			"rejected":    map[string]string{"o2": "supplier missing"},
			"server_time": 5000,
		})
	}, 1)

	records := []domain.Entity{
		&domain.Offering{
			Meta:     domain.Meta{ID: "o1", OwnerID: "U1", UpdatedAt: 100, Dirty: true},
			Name:     "Yam",
			Variants: []domain.Variant{{ID: "v1", Name: "Tuber"}},
			Prices:   []domain.Price{{ID: "p1", VariantID: "v1", AmountMinor: 1200, Currency: "NGN"}},
		},
		&domain.Offering{Meta: domain.Meta{ID: "o2", OwnerID: "U1", UpdatedAt: 90, Deleted: true}},
	}

	ack, err := client.Push(context.Background(), domain.CategoryOfferings, "U1", records)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ack.Accepted)
	assert.Equal(t, "supplier missing", ack.Rejected["o2"])
	assert.Equal(t, int64(5000), ack.ServerTime)

	assert.Equal(t, "U1", got["owner_id"])
	sent := got["records"].([]any)
	require.Len(t, sent, 2)
	first := sent[0].(map[string]any)
	assert.Equal(t, "o1", first["id"])
	assert.Equal(t, float64(100), first["updated_at"])
	assert.NotContains(t, first, "dirty")
	assert.Len(t, first["variants"], 1)
	assert.Equal(t, true, sent[1].(map[string]any)["deleted"])
}

func TestClient_PushEmptyMakesNoCall(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, 1)

	ack, err := client.Push(context.Background(), domain.CategoryBills, "U1", nil)
	require.NoError(t, err)
	assert.Empty(t, ack.Accepted)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_PullLinkedOfferings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/sync/linked_offerings", r.URL.Path)
		assert.Equal(t, "U1", r.URL.Query().Get("owner_id"))
		assert.Equal(t, "42", r.URL.Query().Get("since"))
		assert.Equal(t, []string{"s1", "s2"}, r.URL.Query()["supplier_id"])

		_, _ = w.Write([]byte(`{
			"records": [{
				"id": "lo1", "owner_id": "U1", "updated_at": 77, "deleted": false,
				"supplier_id": "s1", "name": "Palm oil",
				"variants": [{"id": "v1", "name": "1L"}],
				"prices": [{"id": "p1", "variant_id": "v1", "amount_minor": 900, "currency": "NGN"}],
				"sources": []
			}],
			"server_time": 80
		}`))
	}, 1)

	records, err := client.Pull(context.Background(), domain.PullRequest{
		Category:    domain.CategoryLinkedOffering,
		OwnerID:     "U1",
		Since:       42,
		SupplierIDs: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	o := records[0].(*domain.Offering)
	assert.True(t, o.Linked)
	assert.False(t, o.Dirty)
	assert.Equal(t, int64(77), o.UpdatedAt)
	require.Len(t, o.Prices, 1)
	assert.Equal(t, "lo1", o.Prices[0].OfferingID)
}

func TestClient_PullProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": [{
			"id": "p1", "owner_id": "U1", "updated_at": 10, "business_name": "Chop Bar",
			"supplier": {"id": "s-own", "owner_id": "U1", "updated_at": 10, "name": "Chop Bar Ltd"},
			"locations": [{"id": "l1", "label": "Main", "latitude": 5.5}]
		}]}`))
	}, 1)

	records, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryProfile, OwnerID: "U1"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	p := records[0].(*domain.Profile)
	assert.Equal(t, "Chop Bar", p.BusinessName)
	require.NotNil(t, p.Supplier)
	assert.Equal(t, "p1", p.Supplier.ProfileID)
	require.Len(t, p.Locations, 1)
	assert.Equal(t, "p1", p.Locations[0].ProfileID)
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		calls    int32
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.ErrSessionExpired, 1},
		{"forbidden", http.StatusForbidden, `{}`, domain.ErrSessionExpired, 1},
		{"server error retried", http.StatusServiceUnavailable, `{"error":"maintenance"}`, domain.ErrServer, 3},
		{"client error not retried", http.StatusUnprocessableEntity, `{"error":"bad"}`, domain.ErrServer, 1},
		{"bad body", http.StatusOK, `{"records": [`, domain.ErrDecode, 1},
		{"record without id", http.StatusOK, `{"records": [{"name": "x"}]}`, domain.ErrDecode, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, 3)

			records, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryBills, OwnerID: "U1"})
			require.Error(t, err)
			assert.Nil(t, records)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_ServerErrorCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 1)

	_, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryBills})
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.APIServer, apiErr.Kind)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestClient_RetryRecovers(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"records": []}`))
	}, 3)

	records, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryCategories, OwnerID: "U1"})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(Config{BaseURL: srv.URL, Timeout: time.Second, MaxAttempts: 2, InitialBackoff: time.Millisecond},
		staticSession{session: &domain.Session{Token: "tok"}}, logger)

	_, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryBills})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClient_Timeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, MaxAttempts: 1},
		staticSession{session: &domain.Session{Token: "tok"}}, logger)

	_, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryBills})
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClient_NoSession(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(Config{BaseURL: srv.URL, MaxAttempts: 3}, staticSession{err: domain.ErrAuthRequired}, logger)

	_, err := client.Pull(context.Background(), domain.PullRequest{Category: domain.CategoryBills})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCalculateBackoff(t *testing.T) {
	c := &Client{initialBackoff: time.Second, maxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, c.calculateBackoff(1))
	assert.Equal(t, 2*time.Second, c.calculateBackoff(2))
	assert.Equal(t, 4*time.Second, c.calculateBackoff(3))
	assert.Equal(t, 5*time.Second, c.calculateBackoff(4))
}
