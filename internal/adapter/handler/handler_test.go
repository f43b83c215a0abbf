package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHTTPHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", method: http.MethodGet, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "store down", method: http.MethodGet, pingErr: errors.New("dial tcp: refused"), wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
		{name: "wrong method", method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTPHealthHandler(stubPinger{err: tt.pingErr})
			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(tt.method, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody == "" {
				return
			}
			var resp HealthHTTPResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, ServiceName, resp.Service)
		})
	}
}

func TestGRPCHealthCheck(t *testing.T) {
	ctx := context.Background()

	resp, err := NewGRPCHealthHandler(stubPinger{}).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = NewGRPCHealthHandler(stubPinger{err: errors.New("down")}).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = NewGRPCHealthHandler(stubPinger{}).Check(ctx, &healthpb.HealthCheckRequest{Service: "other"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
