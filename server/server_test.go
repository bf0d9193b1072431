package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenworks/sitetrans/artifact"
)

func newTestServer(t *testing.T, token string) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	return New(artifact.NewFileStore(dir), Options{Token: token, DefaultLang: "en"}), dir
}

func post(t *testing.T, h http.Handler, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, TranslationsPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSaveContentAndRaw(t *testing.T) {
	srv, dir := newTestServer(t, "")

	rec := post(t, srv.Handler(), `{"content":{"home":{"title":"Welkom"}},"rawContent":"{\"home\":","lang":"nl"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp artifact.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{filepath.Join(dir, "nl.json"), filepath.Join(dir, "nl.raw.json")}, resp.Paths)

	data, err := os.ReadFile(filepath.Join(dir, "nl.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"home\": {\n    \"title\": \"Welkom\"\n  }\n}\n", string(data))

	raw, err := os.ReadFile(filepath.Join(dir, "nl.raw.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"home":`, string(raw))
}

func TestSaveDefaultsAndFilename(t *testing.T) {
	srv, dir := newTestServer(t, "")

	rec := post(t, srv.Handler(), `{"content":{"a":"b"}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.FileExists(t, filepath.Join(dir, "en.json"))

	rec = post(t, srv.Handler(), `{"rawContent":"oops","filename":"records/faq.de.json"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.FileExists(t, filepath.Join(dir, "records", "faq.de.raw.json"))
	assert.NoFileExists(t, filepath.Join(dir, "records", "faq.de.json"))
}

func TestSaveValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")

	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "no content", body: `{"filename":"nl.json"}`, want: "content or rawContent is required"},
		{name: "escaping filename", body: `{"content":{},"filename":"../etc/x.json"}`, want: "filename"},
		{name: "not json filename", body: `{"content":{},"filename":"nl.txt"}`, want: "filename"},
		{name: "bad lang", body: `{"content":{},"lang":"../nl"}`, want: "lang"},
		{name: "malformed body", body: `{"content":`, want: "invalid JSON body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, srv.Handler(), tc.body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp artifact.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tc.want)
		})
	}
}

func TestBearerToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := post(t, srv.Handler(), `{"content":{}}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, srv.Handler(), `{"content":{}}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, srv.Handler(), `{"content":{}}`, "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type brokenStore struct{}

func (brokenStore) PutArtifact(context.Context, string, any) (artifact.Receipt, error) {
	return artifact.Receipt{}, errors.New("disk full")
}

func (brokenStore) PutRaw(context.Context, string, string) (artifact.Receipt, error) {
	return artifact.Receipt{}, errors.New("disk full")
}

func TestStoreFailureIs500(t *testing.T) {
	srv := New(brokenStore{}, Options{})
	rec := post(t, srv.Handler(), `{"content":{"a":"b"}}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk full")
}

func TestHealthAndMethods(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, TranslationsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPStoreRoundTrip(t *testing.T) {
	srv, dir := newTestServer(t, "tok")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	store := artifact.NewHTTPStore(ts.URL+TranslationsPath, "tok", 5*time.Second)
	ctx := context.Background()

	receipt, err := store.PutArtifact(ctx, "de.json", map[string]any{"title": "Willkommen"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "de.json"), receipt.Path)

	receipt, err = store.PutRaw(ctx, "de.raw.json", "```json\n{}")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "de.raw.json"), receipt.Path)

	raw, err := os.ReadFile(filepath.Join(dir, "de.raw.json"))
	require.NoError(t, err)
	assert.Equal(t, "```json\n{}", string(raw))

	receipt, err = store.PutRaw(ctx, "fr.raw.json", "")
	require.NoError(t, err)
	assert.False(t, receipt.Fallback)
	raw, err = os.ReadFile(filepath.Join(dir, "fr.raw.json"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
