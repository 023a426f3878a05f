package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestMirror(t *testing.T, handler http.Handler, prefix string) *Mirror {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	m, err := New(client, Config{Bucket: "shots", Prefix: prefix})
	require.NoError(t, err)
	return m
}

func TestMirrorUpload(t *testing.T) {
	t.Parallel()

	var gotName string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/shots/o")
		gotName = r.URL.Query().Get("name")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "png-bytes")
		assert.Contains(t, string(body), "image/png")
		fmt.Fprintln(w, `{"name": "`+gotName+`", "bucket": "shots"}`)
	})

	m := newTestMirror(t, handler, "/captures/")
	uri, err := m.Upload(context.Background(), "Home.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "captures/Home.png", gotName)
	assert.Equal(t, "gs://shots/captures/Home.png", uri)
}

func TestMirrorUploadServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "denied"}}`, http.StatusForbidden)
	})
	m := newTestMirror(t, handler, "")
	_, err := m.Upload(context.Background(), "A.png", []byte("x"))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)

	m, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "x.png", m.ObjectName("x.png"))
	require.Equal(t, "image/png", contentType("x.PNG"))
	require.Equal(t, "application/octet-stream", contentType("x.bin"))
}
