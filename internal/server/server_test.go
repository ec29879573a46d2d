package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/metrics"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/storage/memory"
	"github.com/s3fs-fuse/bucketfs/internal/vfs"
)

type testEnv struct {
	srv   *httptest.Server
	store *memory.Store
	hook  *test.Hook
}

func setupTestServer(t *testing.T, creds credentials.Credentials) *testEnv {
	t.Helper()
	return setupTestServerWithConfig(t, creds, Config{Listen: "127.0.0.1:0"})
}

func setupTestServerWithConfig(t *testing.T, creds credentials.Credentials, cfg Config) *testEnv {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	store := memory.New("bkt")
	provider := credentials.NewStaticProvider(creds)
	mgr := metrics.NewManager(metrics.Config{Enable: true})
	fs := vfs.New(provider, objectstore.NewClient(objectstore.Shared(store), log), vfs.WithLogger(log), vfs.WithRecorder(mgr))

	s := New(cfg, fs, provider, mgr, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, hook: hook}
}

func loggedIn() credentials.Credentials {
	return credentials.Credentials{AccessToken: "secret-token", ProjectID: "proj", RegionID: "eu-west-1"}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind fserr.Kind
		want int
	}{
		{fserr.InvalidPath, http.StatusBadRequest},
		{fserr.NotAuthenticated, http.StatusUnauthorized},
		{fserr.NotAllowed, http.StatusForbidden},
		{fserr.ObjectNotFound, http.StatusNotFound},
		{fserr.PartialFailure, http.StatusConflict},
		{fserr.InvalidContent, http.StatusUnprocessableEntity},
		{fserr.TransportFailure, http.StatusBadGateway},
		{fserr.Unknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "fixed-id")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "fixed-id", resp2.Header.Get(RequestIDHeader))
}

func TestCredentialsRedactsToken(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodGet, "/api/v1/credentials", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.NotContains(t, string(body), "secret-token")
	var creds CredentialsResponse
	require.NoError(t, json.Unmarshal(body, &creds))
	assert.Equal(t, CredentialsResponse{ProjectID: "proj", RegionID: "eu-west-1", HasToken: true}, creds)
}

func TestFileLifecycle(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodPut, "/api/v1/content?path=bkt/docs/a.json&format=json",
		map[string]interface{}{"content": map[string]int{"n": 1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/content?path=bkt/docs/a.json&format=json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var content ContentResponse
	decode(t, resp, &content)
	assert.Equal(t, "json", content.Format)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, content.Content)

	resp = env.do(t, http.MethodPost, "/api/v1/folders", map[string]string{"path": "bkt/docs", "folderName": "sub"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/files?path=bkt/docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []vfs.Entry
	decode(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, "sub", entries[0].Name)
	assert.Equal(t, vfs.KindDirectory, entries[0].Kind)
	assert.Equal(t, "a.json", entries[1].Name)

	resp = env.do(t, http.MethodPost, "/api/v1/rename", map[string]string{"oldPath": "bkt/docs/a.json", "newPath": "bkt/docs/b.json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/download?path=bkt/docs/b.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "b.json")

	resp = env.do(t, http.MethodDelete, "/api/v1/files?path=bkt/docs/b.json", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/folders?path=bkt/docs", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.store.Keys("bkt"))
}

func TestSaveTextRequiresString(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodPut, "/api/v1/content?path=bkt/a.txt&format=text", map[string]interface{}{"content": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/content?path=bkt/a.txt&format=text", map[string]interface{}{"content": "hi"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/content?path=bkt/a.txt&format=yaml", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	env := setupTestServer(t, loggedIn())
	_, err := env.store.Put(context.Background(), "bkt", "dir/child.txt", []byte("x"), "text/plain")
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		kind   string
	}{
		{"missing path", http.MethodGet, "/api/v1/files", http.StatusBadRequest, "bad_request"},
		{"invalid path", http.MethodGet, "/api/v1/files?path=/bkt", http.StatusBadRequest, "invalid_path"},
		{"not found", http.MethodGet, "/api/v1/stat?path=bkt/nope", http.StatusNotFound, "object_not_found"},
		{"delete bucket", http.MethodDelete, "/api/v1/files?path=bkt", http.StatusForbidden, "not_allowed"},
		{"delete non-empty folder", http.MethodDelete, "/api/v1/files?path=bkt/dir", http.StatusForbidden, "not_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body ErrorResponse
			decode(t, resp, &body)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestPartialFailureCarriesResidue(t *testing.T) {
	env := setupTestServer(t, loggedIn())
	_, err := env.store.Put(context.Background(), "bkt", "a.txt", []byte("x"), "text/plain")
	require.NoError(t, err)
	env.store.Fail(memory.OpDelete, "a.txt", errors.New("connection reset"))

	resp := env.do(t, http.MethodPost, "/api/v1/rename", map[string]string{"oldPath": "bkt/a.txt", "newPath": "bkt/b.txt"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "partial_failure", body.Kind)
	assert.Equal(t, []string{"bkt/a.txt", "bkt/b.txt"}, body.Residue)
}

func TestNotAuthenticated(t *testing.T) {
	env := setupTestServer(t, credentials.Credentials{LoginError: true})

	resp := env.do(t, http.MethodGet, "/api/v1/buckets", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.store.Calls(""))

	resp = env.do(t, http.MethodGet, "/api/v1/credentials", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var creds CredentialsResponse
	decode(t, resp, &creds)
	assert.True(t, creds.LoginError)
	assert.False(t, creds.HasToken)
}

func TestListBuckets(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodGet, "/api/v1/buckets?prefix=b", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buckets []map[string]interface{}
	decode(t, resp, &buckets)
	require.Len(t, buckets, 1)
	assert.Equal(t, "bkt", buckets[0]["name"])
}

func TestClientLog(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodPost, "/api/v1/log", map[string]string{"level": "warning", "message": "widget failed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var found bool
	for _, entry := range env.hook.AllEntries() {
		if entry.Message == "widget failed" {
			found = true
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.Equal(t, "client", entry.Data["source"])
		}
	}
	assert.True(t, found)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, loggedIn())
	env.do(t, http.MethodGet, "/api/v1/stat?path=bkt", nil)

	resp := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.Contains(body, `bucketfs_vfs_operations_total{container="bkt",operation="stat",outcome="ok"} 1`), body)
	assert.Contains(t, body, `route="/api/v1/stat"`)
}

func TestServiceURLs(t *testing.T) {
	env := setupTestServerWithConfig(t, loggedIn(), Config{
		Listen: "127.0.0.1:0",
		ServiceURLs: map[string]string{
			"storage":     "http://localhost:4566",
			"credentials": "http://localhost:8080/token",
			"minio":       "",
		},
	})

	resp := env.do(t, http.MethodGet, "/api/v1/urls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var urls map[string]string
	decode(t, resp, &urls)
	assert.Equal(t, map[string]string{
		"storage":     "http://localhost:4566",
		"credentials": "http://localhost:8080/token",
	}, urls)
}

func TestServiceURLsEmpty(t *testing.T) {
	env := setupTestServer(t, loggedIn())

	resp := env.do(t, http.MethodGet, "/api/v1/urls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var urls map[string]string
	decode(t, resp, &urls)
	assert.Empty(t, urls)
}
