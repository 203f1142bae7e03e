package sumup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/restobook/sumup-sync/internal/config"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string, pageSize, maxPages int) *Client {
	return NewClient(slog.Default(), &config.SumUpConfig{
		APIBaseURL:  serverURL,
		TokenURL:    serverURL + "/token",
		PageSize:    pageSize,
		MaxPages:    maxPages,
		HTTPTimeout: 5 * time.Second,
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func txRecord(id string) map[string]interface{} {
	return map[string]interface{}{"id": id, "amount": 10.0}
}

func TestExchangeRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))

		writeJSON(t, w, map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	token, err := client.ExchangeRefreshToken(context.Background(), "client-1", "secret-1", "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "new-refresh", token.RefreshToken)
	assert.Equal(t, int64(3600), token.ExpiresIn)
}

func TestExchangeRefreshToken_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	_, err := client.ExchangeRefreshToken(context.Background(), "c", "s", "r")

	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, http.StatusBadRequest, refreshErr.StatusCode)
	assert.Contains(t, refreshErr.Body, "invalid_grant")
}

func TestExchangeRefreshToken_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"expires_in": 3600})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	_, err := client.ExchangeRefreshToken(context.Background(), "c", "s", "r")

	var refreshErr *RefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestListTransactions_SingleShortPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0.1/me/transactions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		writeJSON(t, w, []interface{}{txRecord("a"), txRecord("b")})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0]["id"])
}

func TestListTransactions_DateRangeParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-01-01", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2025-01-31", r.URL.Query().Get("end_date"))
		writeJSON(t, w, []interface{}{})
	}))
	defer server.Close()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	client := newTestClient(server.URL, 10, 100)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", &from, &to)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestListTransactions_FollowsNextLinks(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		switch pages {
		case 1:
			writeJSON(t, w, map[string]interface{}{
				"items": []interface{}{txRecord("a"), txRecord("b")},
				"links": []interface{}{map[string]interface{}{"rel": "next", "href": "/v0.1/me/transactions?page=2"}},
			})
		case 2:
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			writeJSON(t, w, map[string]interface{}{
				"items": []interface{}{txRecord("c")},
			})
		default:
			t.Fatalf("unexpected page request %d", pages)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, 100)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "c", txs[2]["id"])
}

func TestListTransactions_FallbackOn404(t *testing.T) {
	var sawFallback bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v0.1/me/transactions":
			w.WriteHeader(http.StatusNotFound)
		case "/v2.1/merchants/M1/transactions/history":
			sawFallback = true
			writeJSON(t, w, map[string]interface{}{
				"items": []interface{}{txRecord("x")},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, sawFallback)
}

func TestListTransactions_UnauthorizedFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	_, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListTransactions_PartialSuccess(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if pages == 1 {
			writeJSON(t, w, map[string]interface{}{
				"items": []interface{}{txRecord("a"), txRecord("b")},
				"links": []interface{}{map[string]interface{}{"rel": "next", "href": "/v0.1/me/transactions?page=2"}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// A mid-run failure returns what was accumulated, not an error
	client := newTestClient(server.URL, 2, 100)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestListTransactions_PageCeiling(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		writeJSON(t, w, map[string]interface{}{
			"items": []interface{}{txRecord("a"), txRecord("b")},
			"links": []interface{}{map[string]interface{}{"rel": "next", "href": "/v0.1/me/transactions?page=next"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2, 3)
	txs, err := client.ListTransactions(context.Background(), "tok", "M1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Len(t, txs, 6)
}

func TestFetchDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2.1/merchants/M1/transactions", r.URL.Path)
		assert.Equal(t, "tx-1", r.URL.Query().Get("id"))
		writeJSON(t, w, map[string]interface{}{"id": "tx-1", "tip_amount": 1.5})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	detail, err := client.FetchDetail(context.Background(), "tok", "M1", "tx-1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 1.5, detail["tip_amount"])
}

func TestFetchDetail_ArrayWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []interface{}{map[string]interface{}{"id": "tx-1", "vat_amount": 3.2}})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	detail, err := client.FetchDetail(context.Background(), "tok", "M1", "tx-1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, 3.2, detail["vat_amount"])
}

func TestFetchDetail_AbsenceIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	detail, err := client.FetchDetail(context.Background(), "tok", "M1", "tx-1")
	assert.NoError(t, err)
	assert.Nil(t, detail)
}

func TestFetchDetail_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 10, 100)
	_, err := client.FetchDetail(context.Background(), "tok", "M1", "tx-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFetchDetail_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := newTestClient(server.URL, 10, 100)
	detail, err := client.FetchDetail(context.Background(), "tok", "M1", "tx-1")
	assert.NoError(t, err)
	assert.Nil(t, detail)
}

func TestMergeDetail(t *testing.T) {
	list := payload.Payload{"id": "tx-1", "amount": 10.0, "status": "PENDING", "tip_amount": 0.5}
	detail := payload.Payload{"status": "SUCCESSFUL", "tip_amount": 1.5, "vat_amount": 1.9}

	merged := MergeDetail(list, detail)

	assert.Equal(t, "tx-1", merged["id"])
	assert.Equal(t, "SUCCESSFUL", merged["status"])
	// Detail wins for the financial fields
	assert.Equal(t, 1.5, merged["tip_amount"])
	assert.Equal(t, 1.9, merged["vat_amount"])
	// Missing in detail: list value is kept
	assert.Equal(t, 10.0, merged["amount"])
}

func TestMergeDetail_NilDetail(t *testing.T) {
	list := payload.Payload{"id": "tx-1", "amount": 10.0}

	merged := MergeDetail(list, nil)
	assert.Equal(t, "tx-1", merged["id"])

	// The clone must be independent of the input
	merged["amount"] = 99.0
	assert.Equal(t, 10.0, list["amount"])
}

func TestMergeDetail_ZeroDefaults(t *testing.T) {
	merged := MergeDetail(payload.Payload{"id": "tx-1"}, payload.Payload{"foo": "bar"})
	assert.Equal(t, 0.0, merged["tip_amount"])
	assert.Equal(t, 0.0, merged["vat_amount"])
	assert.Equal(t, 0.0, merged["amount"])
}
