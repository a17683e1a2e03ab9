package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// Fetch reads a whole statement payload from a local path or a gs:// URI.
func Fetch(ctx context.Context, location string) ([]byte, error) {
	if IsGCS(location) {
		return FetchFromGCS(ctx, location)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return data, nil
}

// IsGCS reports whether location is a gs:// URI.
func IsGCS(location string) bool {
	return strings.HasPrefix(location, gcsScheme)
}

// SplitGCSURI splits gs://bucket/path/to/object into bucket and object.
func SplitGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCS(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FetchFromGCS downloads an object using Application Default Credentials.
func FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := SplitGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", uri, err)
	}
	return data, nil
}
