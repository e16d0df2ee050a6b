package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		check      func(context.Context) error
		statusCode int
	}{
		{
			name:       "backend reachable",
			check:      func(context.Context) error { return nil },
			statusCode: http.StatusOK,
		},
		{
			name:       "backend down",
			check:      func(context.Context) error { return errors.New("database is closed") },
			statusCode: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(tt.check).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.statusCode, rec.Code)
		})
	}
}
