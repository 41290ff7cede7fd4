package endpoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mfsync/internal/components/telemetry"
	"mfsync/internal/scrapers/moneyforward"

	"github.com/stretchr/testify/require"
)

type handler func(hit int, w http.ResponseWriter, r *http.Request)

func serve(t *testing.T, handle handler) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit := int(hits.Add(1))
		handle(hit, w, r)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newClient(address string, rec *telemetry.Recorder) *Client {
	return NewClient(address, Options{
		Retries:    2,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
	}, rec)
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	server, hits := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		if hit < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status": "ok", "count": 2}`))
	})

	count, err := newClient(server.URL, &telemetry.Recorder{}).SyncData(context.Background(), []moneyforward.Record{
		moneyforward.NewRecord("2024/03/01", "a", "1", "", ""),
		moneyforward.NewRecord("2024/03/02", "b", "2", "", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.EqualValues(t, 3, hits.Load())
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	server, hits := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := &telemetry.Recorder{}
	_, err := newClient(server.URL, rec).GetSyncConfig(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, 3, netErr.Attempts)
	require.EqualValues(t, 3, hits.Load())
	require.Len(t, rec.Reports("broken", report_client_send), 1)
}

func TestSendRejectsMarkup(t *testing.T) {
	server, hits := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("\n  <!DOCTYPE html><html><body>Sign in</body></html>"))
	})

	_, err := newClient(server.URL, &telemetry.Recorder{}).GetSyncConfig(context.Background())

	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, http.StatusOK, invalid.Status)
	require.Contains(t, invalid.Snippet, "<!DOCTYPE html>")
	require.NotEmpty(t, invalid.Guidance())
	require.EqualValues(t, 1, hits.Load())
}

func TestSendRejectsMalformedJSON(t *testing.T) {
	server, _ := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok",`))
	})

	_, err := newClient(server.URL, &telemetry.Recorder{}).GetSyncConfig(context.Background())
	var invalid *InvalidResponseError
	require.ErrorAs(t, err, &invalid)
	require.Error(t, invalid.Unwrap())
}

func TestSendApplicationError(t *testing.T) {
	server, hits := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error", "message": "sheet not found"}`))
	})

	_, err := newClient(server.URL, &telemetry.Recorder{}).SyncData(context.Background(), nil)

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "sheet not found", appErr.Message)
	require.EqualValues(t, 1, hits.Load())
}

func TestRequestShape(t *testing.T) {
	var (
		contentType string
		received    map[string]any
	)
	server, _ := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.Write([]byte(`{"status": "ok", "mode": "Full"}`))
	})

	config, err := newClient(server.URL, &telemetry.Recorder{}).GetSyncConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, SyncFull, config.Mode)
	require.Contains(t, contentType, "text/plain")
	require.Equal(t, map[string]any{"action": "get_sync_config"}, received)
}

func TestGetSyncConfigUnknownMode(t *testing.T) {
	server, _ := serve(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "mode": "Everything"}`))
	})

	rec := &telemetry.Recorder{}
	config, err := newClient(server.URL, rec).GetSyncConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, SyncIncremental, config.Mode)
	require.Len(t, rec.Reports("warning", report_client_get_sync_config), 1)
}
