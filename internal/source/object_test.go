package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newS3Server serves objects path-style (/bucket/key) the way an
// S3-compatible store does.
func newS3Server(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><RequestId>1</RequestId></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("ETag", `"0123456789abcdef"`)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseObjectURI(t *testing.T) {
	bucket, key, err := parseObjectURI("s3://assets/js/app.js")
	require.NoError(t, err)
	assert.Equal(t, "assets", bucket)
	assert.Equal(t, "js/app.js", key)

	for _, id := range []string{"s3://", "s3://assets", "s3://assets/", "s3:///app.js"} {
		_, _, err := parseObjectURI(id)
		assert.Error(t, err, id)
	}
}

func TestMinioStore_GetObject(t *testing.T) {
	srv := newS3Server(t, map[string]string{"assets/js/app.js": "app()"})

	store, err := NewMinioStore(strings.TrimPrefix(srv.URL, "http://"), "access", "secret", "us-east-1", false)
	require.NoError(t, err)

	data, err := store.GetObject(context.Background(), "assets", "js/app.js")
	require.NoError(t, err)
	assert.Equal(t, "app()", string(data))

	_, err = store.GetObject(context.Background(), "assets", "js/missing.js")
	assert.Error(t, err)
}

func TestResolve_ObjectThroughMinio(t *testing.T) {
	srv := newS3Server(t, map[string]string{"assets/lib.js": "lib()"})

	store, err := NewMinioStore(strings.TrimPrefix(srv.URL, "http://"), "access", "secret", "us-east-1", false)
	require.NoError(t, err)

	l := New(Config{Objects: store})
	res := l.Resolve(context.Background(), "s3://assets/lib.js", "")

	require.True(t, res.OK(), res.SrcError)
	assert.Equal(t, "lib()", res.Src)
	assert.Equal(t, "s3://assets/lib.js", res.SrcPath)
}
