package docs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/config"
)

func newDocServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/auth.md":
			fmt.Fprint(w, "# Auth design\n\nTokens rotate hourly.")
		case "/retries.md":
			fmt.Fprint(w, "# Retries\n\nExponential backoff.")
		case "/big.md":
			fmt.Fprint(w, strings.Repeat("x", 200))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func localDocsConfig() *config.DocsConfig {
	return &config.DocsConfig{
		Enabled:        true,
		AllowedDomains: []string{"127.0.0.1"},
		CacheTTL:       time.Minute,
		MaxDocs:        3,
		MaxDocBytes:    64 * 1024,
	}
}

func TestService_FetchReferenced(t *testing.T) {
	srv, _ := newDocServer(t)
	svc := NewService(localDocsConfig(), "")

	body := "Auth breaks on refresh. Design notes: " + srv.URL + "/auth.md"
	docs := svc.FetchReferenced(context.Background(), body)

	require.Len(t, docs, 1)
	assert.Equal(t, srv.URL+"/auth.md", docs[0].URL)
	assert.Contains(t, docs[0].Content, "Tokens rotate hourly")
	assert.False(t, docs[0].Truncated)
}

func TestService_CacheAvoidsRefetch(t *testing.T) {
	srv, hits := newDocServer(t)
	svc := NewService(localDocsConfig(), "")
	body := "see " + srv.URL + "/auth.md"

	first := svc.FetchReferenced(context.Background(), body)
	second := svc.FetchReferenced(context.Background(), body)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Content, second[0].Content)
	assert.Equal(t, int64(1), hits.Load())
}

func TestService_CapsAtMaxDocs(t *testing.T) {
	srv, _ := newDocServer(t)
	cfg := localDocsConfig()
	cfg.MaxDocs = 1
	svc := NewService(cfg, "")

	body := srv.URL + "/auth.md and " + srv.URL + "/retries.md"
	docs := svc.FetchReferenced(context.Background(), body)

	require.Len(t, docs, 1)
	assert.Equal(t, srv.URL+"/auth.md", docs[0].URL)
}

func TestService_DisallowedDomainSkipped(t *testing.T) {
	srv, hits := newDocServer(t)
	cfg := localDocsConfig()
	cfg.AllowedDomains = []string{"github.com"}
	svc := NewService(cfg, "")

	docs := svc.FetchReferenced(context.Background(), "see "+srv.URL+"/auth.md")

	assert.Empty(t, docs)
	assert.Zero(t, hits.Load(), "disallowed URLs are never requested")
}

func TestService_TruncatesAtMaxDocBytes(t *testing.T) {
	srv, _ := newDocServer(t)
	cfg := localDocsConfig()
	cfg.MaxDocBytes = 100
	svc := NewService(cfg, "")

	docs := svc.FetchReferenced(context.Background(), srv.URL+"/big.md")

	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Content, 100)
	assert.True(t, docs[0].Truncated)
}

func TestService_FetchFailureSkipped(t *testing.T) {
	srv, _ := newDocServer(t)
	svc := NewService(localDocsConfig(), "")

	body := srv.URL + "/missing.md then " + srv.URL + "/auth.md"
	docs := svc.FetchReferenced(context.Background(), body)

	// The 404 does not consume a slot or abort the pass.
	require.Len(t, docs, 1)
	assert.Equal(t, srv.URL+"/auth.md", docs[0].URL)
}

func TestService_DisabledReturnsNothing(t *testing.T) {
	cfg := localDocsConfig()
	cfg.Enabled = false
	svc := NewService(cfg, "")

	assert.Nil(t, svc.FetchReferenced(context.Background(), "https://github.com/acme/api/blob/main/README.md"))

	var nilSvc *Service
	assert.Nil(t, nilSvc.FetchReferenced(context.Background(), "anything"))
}

func TestFetcher_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	fetcher := NewFetcher("tok-123")
	content, truncated, err := fetcher.Fetch(context.Background(), srv.URL+"/doc.md", 1024)

	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.False(t, truncated)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}
