package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/common"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4711"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))

	req.RemoteAddr = "203.0.113.8"
	require.Equal(t, "203.0.113.8", common.ClientIP(req))
	require.Empty(t, common.ClientIP(nil))
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/dlq?limit=25&offset=-3&page=x", nil)
	require.Equal(t, 25, common.QueryInt(req, "limit", 50))
	require.Equal(t, 0, common.QueryInt(req, "offset", 0))
	require.Equal(t, 1, common.QueryInt(req, "page", 1))
	require.Equal(t, 7, common.QueryInt(req, "missing", 7))
}

func TestWriteErrorUsesAppErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	appErr := common.NewAppError("ORDER_BUSY", "order busy", http.StatusConflict, nil).WithDetails(map[string]string{"orderId": "o-1"})
	common.WriteError(rec, appErr)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"error":{"code":"ORDER_BUSY","message":"order busy","details":{"orderId":"o-1"}}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	common.WriteError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, http.StatusInternalServerError, common.StatusOf(errors.New("boom")))
}
