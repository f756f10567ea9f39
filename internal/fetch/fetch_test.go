package fetch

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestGetPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	c := New(nil, time.Second)
	body, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestGetDecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("gzipped body"))
		gz.Close()
	}))
	defer srv.Close()

	c := New(nil, time.Second)
	body, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "gzipped body", string(body))
}

func TestGetDecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("brotli body"))
		bw.Close()
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := New(nil, time.Second)
	body, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "brotli body", string(body))
}

func TestGetNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(nil, time.Second)
	_, err := c.Get(t.Context(), srv.URL)
	require.ErrorContains(t, err, "404")
}

func TestGetAppliesDefaultHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(map[string]string{"Authorization": "Bearer secret"}, time.Second)
	_, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", gotAuth)
}
