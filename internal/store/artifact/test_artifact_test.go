package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payload := []byte(`{"run_id":"r1"}`)
	require.NoError(t, s.Put(ctx, "r1", "/"+ResultPath, payload))
	payload[0] = 'X'

	got, err := s.Get(ctx, "r1", ResultPath)
	require.NoError(t, err)
	assert.Equal(t, `{"run_id":"r1"}`, string(got))

	_, err = s.Get(ctx, "r1", MergedTextPath)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListIsScopedToRun(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, "r1", DiagnosticsPath, nil))
	require.NoError(t, s.Put(ctx, "r1", ResultPath, nil))
	require.NoError(t, s.Put(ctx, "r10", ResultPath, nil))

	paths, err := s.List(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{DiagnosticsPath, ResultPath}, paths)
}

func TestObjectKey(t *testing.T) {
	key, err := objectKey(" r1 ", "//a/b.json")
	require.NoError(t, err)
	assert.Equal(t, "r1/a/b.json", key)

	for _, tc := range []struct{ run, path string }{
		{"", "a"},
		{"r1", " "},
		{"r1", "../escape"},
	} {
		_, err := objectKey(tc.run, tc.path)
		assert.Error(t, err, "%q %q", tc.run, tc.path)
	}
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
	assert.Equal(t, "application/json", contentType("r1/result.json"))
}
