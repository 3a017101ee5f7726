package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
)

// Options carries backend settings used by Open.
type Options struct {
	S3Region   string
	S3Endpoint string
	MinIO      MinIOConfig
}

// Open returns a store rooted at location. Supported forms:
//
//	s3://bucket/prefix
//	minio://bucket/prefix
//	file:///abs/dir, ./relative/dir
func Open(ctx context.Context, location string, opts Options) (BlobStore, error) {
	scheme, bucket, prefix, err := parseLocation(location)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "s3":
		loadOpts := []func(*config.LoadOptions) error{}
		if opts.S3Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(opts.S3Region))
		}
		endpoint := opts.S3Endpoint
		if endpoint == "" {
			endpoint = os.Getenv("AWS_ENDPOINT_URL")
		}
		if endpoint != "" {
			loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		return NewS3Store(cfg, bucket, prefix), nil
	case "minio":
		return NewMinIOStore(opts.MinIO, bucket, prefix)
	default:
		return NewLocalStore(prefix), nil
	}
}

// OpenObject splits a location naming a single object into a store for its parent and the
// object's key within that store.
func OpenObject(ctx context.Context, location string, opts Options) (BlobStore, string, error) {
	scheme, bucket, prefix, err := parseLocation(location)
	if err != nil {
		return nil, "", err
	}

	var parent, key string
	if scheme == "file" {
		parent, key = filepath.Dir(prefix), filepath.Base(prefix)
	} else {
		dir, base := path.Split(prefix)
		parent, key = scheme+"://"+bucket+"/"+strings.TrimSuffix(dir, "/"), base
	}
	if key == "" || key == "." || key == string(filepath.Separator) {
		return nil, "", fmt.Errorf("location %q does not name an object", location)
	}

	store, err := Open(ctx, parent, opts)
	if err != nil {
		return nil, "", err
	}
	return store, key, nil
}

func parseLocation(location string) (scheme, bucket, prefix string, err error) {
	if location == "" {
		return "", "", "", fmt.Errorf("empty storage location")
	}
	if !strings.Contains(location, "://") {
		return "file", "", location, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid storage location %q: %w", location, err)
	}

	switch u.Scheme {
	case "s3", "minio":
		if u.Host == "" {
			return "", "", "", fmt.Errorf("storage location %q has no bucket", location)
		}
		return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/"), nil
	case "file":
		return "file", "", u.Path, nil
	}
	return "", "", "", fmt.Errorf("unsupported storage scheme %q", u.Scheme)
}
