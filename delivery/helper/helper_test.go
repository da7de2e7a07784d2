package helper

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/desain-gratis/congestion/types/entity"
)

func TestSetSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSuccess(rec, []string{"a"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"success":["a"]}`, rec.Body.String())
}

func TestSetSuccess_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSuccess(rec, entity.Snapshot{{Name: "A", Level: entity.Level(9)}})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"SERVER_ERROR"`)
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, "BAD_REQUEST", "limit must be a positive number", http.StatusBadRequest, errors.New("strconv"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":{"errors":[{"http_code":400,"code":"BAD_REQUEST","message":"limit must be a positive number"}]}}`, rec.Body.String())
}
