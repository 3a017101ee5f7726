package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinIO accepts every request and counts bucket existence checks.
func fakeMinIO(t *testing.T, heads *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestMinIOBucketCheckRetriedAfterCancel(t *testing.T) {
	var heads atomic.Int32
	store, err := NewMinIOStore(MinIOConfig{
		Endpoint:  fakeMinIO(t, &heads),
		AccessKey: "minio",
		SecretKey: "minio123",
	}, "depotmap", "runs")
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Put(cancelled, "730.lua", []byte("addappid(730)")))

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "730.lua", []byte("addappid(730)")))
	require.NoError(t, store.Put(ctx, "731.lua", []byte("addappid(731)")))
	assert.Equal(t, int32(1), heads.Load(), "a successful bucket check is not repeated")
}

func TestNewMinIOStoreValidation(t *testing.T) {
	_, err := NewMinIOStore(MinIOConfig{AccessKey: "a", SecretKey: "b"}, "bucket", "")
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewMinIOStore(MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, " ", "")
	assert.ErrorContains(t, err, "bucket")
}
