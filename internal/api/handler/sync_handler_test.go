package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/api/middleware"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/domain/session"
	"github.com/restobook/sumup-sync/internal/domain/syncrun"
	syncsvc "github.com/restobook/sumup-sync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncOrganization(ctx context.Context, organizationID uuid.UUID, from, to *time.Time) (*syncrun.OrganizationResult, error) {
	args := m.Called(ctx, organizationID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncrun.OrganizationResult), args.Error(1)
}

func (m *MockSyncer) SyncItems(ctx context.Context, organizationID uuid.UUID, params syncsvc.ItemSyncParams) (*syncrun.ItemSyncResult, error) {
	args := m.Called(ctx, organizationID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncrun.ItemSyncResult), args.Error(1)
}

func setupTestRouter(handler gin.HandlerFunc, sess *session.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync", func(c *gin.Context) {
		if sess != nil {
			c.Set(middleware.SessionKey, sess)
		}
		handler(c)
	})
	return r
}

func managerSession(orgID uuid.UUID) *session.Session {
	return &session.Session{
		Token:          "tok",
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           session.RoleManager,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
}

func postJSON(t *testing.T, router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "/sync", bytes.NewBuffer(jsonBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSyncHandler_SyncItems(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	orgID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		mockSyncer.On("SyncItems", mock.Anything, orgID, syncsvc.ItemSyncParams{Limit: 25}).
			Return(&syncrun.ItemSyncResult{
				OrganizationID:        orgID,
				TransactionsProcessed: 25,
				ItemsCreated:          60,
				TotalTransactions:     500,
				TransactionsWithItems: 400,
			}, nil)

		rr := postJSON(t, router, SyncItemsRequest{Limit: 25})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(25), resp["transactions_processed"])
		assert.Equal(t, float64(60), resp["items_created"])
		assert.Equal(t, float64(0), resp["errors"])
		assert.Equal(t, float64(500), resp["total_transactions"])
		assert.Equal(t, float64(400), resp["transactions_with_items"])
		assert.NotContains(t, resp, "error_details")

		mockSyncer.AssertExpectations(t)
	})

	t.Run("Partial failure reports success false", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		mockSyncer.On("SyncItems", mock.Anything, orgID, mock.Anything).
			Return(&syncrun.ItemSyncResult{
				OrganizationID:        orgID,
				TransactionsProcessed: 9,
				ItemsCreated:          20,
				ErrorCount:            1,
				ErrorDetails: []syncrun.TransactionError{
					{TransactionID: "TX-9", Message: "insert failed"},
				},
			}, nil)

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, float64(1), resp["errors"])
		require.Contains(t, resp, "error_details")
	})

	t.Run("Date range passed through", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		from := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
		mockSyncer.On("SyncItems", mock.Anything, orgID, mock.MatchedBy(func(params syncsvc.ItemSyncParams) bool {
			return params.DateFrom != nil && params.DateFrom.Equal(from) &&
				params.DateTo != nil && params.DateTo.Equal(to)
		})).Return(&syncrun.ItemSyncResult{OrganizationID: orgID}, nil)

		rr := postJSON(t, router, SyncItemsRequest{DateFrom: "2025-02-01", DateTo: "2025-02-28"})
		assert.Equal(t, http.StatusOK, rr.Code)
		mockSyncer.AssertExpectations(t)
	})

	t.Run("One-sided date range", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		for _, body := range []SyncItemsRequest{
			{DateFrom: "2025-02-01"},
			{DateTo: "2025-02-28"},
		} {
			rr := postJSON(t, router, body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}
		mockSyncer.AssertNotCalled(t, "SyncItems")
	})

	t.Run("Invalid date", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		rr := postJSON(t, router, SyncItemsRequest{DateFrom: "01.02.2025", DateTo: "2025-02-28"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockSyncer.AssertNotCalled(t, "SyncItems")
	})

	t.Run("Missing session", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, nil)

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		mockSyncer.AssertNotCalled(t, "SyncItems")
	})

	t.Run("Staff role forbidden", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		sess := managerSession(orgID)
		sess.Role = "staff"
		router := setupTestRouter(handler.SyncItems, sess)

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Insufficient permissions to trigger sync", resp.Error.Message)
		mockSyncer.AssertNotCalled(t, "SyncItems")
	})

	t.Run("No credential configured", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		mockSyncer.On("SyncItems", mock.Anything, orgID, mock.Anything).
			Return(nil, credential.ErrCredentialNotFound{OrganizationID: orgID})

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "No active merchant credential configured", resp.Error.Message)
	})

	t.Run("OAuth not configured", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		mockSyncer.On("SyncItems", mock.Anything, orgID, mock.Anything).
			Return(nil, syncsvc.ErrOAuthNotConfigured)

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Internal error", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.SyncItems, managerSession(orgID))

		mockSyncer.On("SyncItems", mock.Anything, orgID, mock.Anything).
			Return(nil, errors.New("db down"))

		rr := postJSON(t, router, SyncItemsRequest{})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestSyncHandler_Sync(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	orgID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, managerSession(orgID))

		mockSyncer.On("SyncOrganization", mock.Anything, orgID, (*time.Time)(nil), (*time.Time)(nil)).
			Return(&syncrun.OrganizationResult{
				OrganizationID:      orgID,
				TotalProcessed:      120,
				NewTransactions:     20,
				UpdatedTransactions: 100,
				MerchantResults: []syncrun.MerchantResult{
					{MerchantCode: "M1", Total: 120, New: 20, Updated: 100, ItemsExtracted: 250},
				},
			}, nil)

		rr := postJSON(t, router, SyncRequest{OrganizationID: orgID.String()})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(120), resp["totalTransactionsProcessed"])
		assert.Equal(t, float64(20), resp["newTransactionsAdded"])
		assert.Equal(t, "Synchronized 120 transactions (20 new, 100 updated)", resp["message"])

		merchantResults, ok := resp["merchantResults"].([]interface{})
		require.True(t, ok)
		require.Len(t, merchantResults, 1)

		mockSyncer.AssertExpectations(t)
	})

	t.Run("Merchant failure flips success", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, managerSession(orgID))

		mockSyncer.On("SyncOrganization", mock.Anything, orgID, mock.Anything, mock.Anything).
			Return(&syncrun.OrganizationResult{
				OrganizationID: orgID,
				MerchantResults: []syncrun.MerchantResult{
					{MerchantCode: "M1", Error: "token acquisition failed"},
				},
			}, nil)

		rr := postJSON(t, router, SyncRequest{OrganizationID: orgID.String()})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, false, resp["success"])
	})

	t.Run("No merchants yields empty array", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, managerSession(orgID))

		mockSyncer.On("SyncOrganization", mock.Anything, orgID, mock.Anything, mock.Anything).
			Return(&syncrun.OrganizationResult{OrganizationID: orgID}, nil)

		rr := postJSON(t, router, SyncRequest{OrganizationID: orgID.String()})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		merchantResults, ok := resp["merchantResults"].([]interface{})
		require.True(t, ok)
		assert.Empty(t, merchantResults)
	})

	t.Run("Date range passed through", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, managerSession(orgID))

		from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		mockSyncer.On("SyncOrganization", mock.Anything, orgID, mock.MatchedBy(func(v *time.Time) bool {
			return v != nil && v.Equal(from)
		}), (*time.Time)(nil)).
			Return(&syncrun.OrganizationResult{OrganizationID: orgID}, nil)

		rr := postJSON(t, router, SyncRequest{OrganizationID: orgID.String(), FromDate: "2025-01-01"})
		assert.Equal(t, http.StatusOK, rr.Code)
		mockSyncer.AssertExpectations(t)
	})

	t.Run("Invalid organization id", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, managerSession(orgID))

		rr := postJSON(t, router, map[string]interface{}{"organizationId": "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockSyncer.AssertNotCalled(t, "SyncOrganization")
	})

	t.Run("Missing session", func(t *testing.T) {
		mockSyncer := new(MockSyncer)
		handler := NewSyncHandler(logger, mockSyncer)
		router := setupTestRouter(handler.Sync, nil)

		rr := postJSON(t, router, SyncRequest{OrganizationID: orgID.String()})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
