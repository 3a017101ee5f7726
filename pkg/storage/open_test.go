package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		location string
		scheme   string
		bucket   string
		prefix   string
		wantErr  bool
	}{
		{location: "lua_output", scheme: "file", prefix: "lua_output"},
		{location: "file:///var/depotmap", scheme: "file", prefix: "/var/depotmap"},
		{location: "s3://artifacts/depots/latest", scheme: "s3", bucket: "artifacts", prefix: "depots/latest"},
		{location: "minio://artifacts", scheme: "minio", bucket: "artifacts"},
		{location: "s3:///nobucket", wantErr: true},
		{location: "gs://bucket/x", wantErr: true},
		{location: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			scheme, bucket, prefix, err := parseLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestOpenObjectLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, NewLocalStore(dir).Put(ctx, "depotkeys.json", []byte(`{"1":"a"}`)))

	store, key, err := OpenObject(ctx, filepath.Join(dir, "depotkeys.json"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "depotkeys.json", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":"a"}`, string(data))
}

func TestOpenObjectRejectsBucketOnly(t *testing.T) {
	_, _, err := OpenObject(context.Background(), "s3://bucket", Options{})
	assert.Error(t, err)
}

func TestOpenMinIORequiresCredentials(t *testing.T) {
	_, err := Open(context.Background(), "minio://bucket/prefix", Options{
		MinIO: MinIOConfig{Endpoint: "localhost:9000"},
	})
	assert.Error(t, err)
}
