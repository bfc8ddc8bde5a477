package devserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/indexer"
	"github.com/gnana997/compreg/pkg/registry"
	"github.com/gnana997/compreg/pkg/util"
)

func newStore(t *testing.T, names ...string) *registry.Store {
	t.Helper()
	store := registry.New(registry.Config{
		OutputPath: filepath.Join(t.TempDir(), "component-registry.json"),
		Logger:     util.NopLogger(),
	})
	if names == nil {
		return store
	}
	doc := catalog.NewDocument(time.Now())
	for _, name := range names {
		doc.Components = append(doc.Components, catalog.ComponentRecord{
			Path:            "src/components/ui/" + name + ".tsx",
			Name:            name,
			Category:        catalog.CategoryUnknown,
			Exports:         []string{name},
			Props:           []catalog.PropRecord{},
			DetectionMethod: catalog.DetectionSyntaxTree,
		})
	}
	doc.AddWarning("Broken.tsx: parse failed")
	store.Replace(doc, 0)
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRegistry(t *testing.T) {
	s := New(newStore(t, "Button", "Card"), Config{Logger: util.NopLogger()})

	rec := get(t, s.Handler(), "/registry.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	doc, err := catalog.LoadFromBytes(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, doc.Components, 2)
}

func TestRegistry_NotBuilt(t *testing.T) {
	s := New(newStore(t), Config{Logger: util.NopLogger()})

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/registry.json").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/diagnostics.json").Code)
}

func TestDiagnostics(t *testing.T) {
	s := New(newStore(t, "Button"), Config{Logger: util.NopLogger()})

	rec := get(t, s.Handler(), "/diagnostics.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var report catalog.DiagnosticsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.ComponentCount)
	assert.Equal(t, []string{"Broken.tsx: parse failed"}, report.Warnings)
}

func TestHealth(t *testing.T) {
	s := New(newStore(t, "Button"), Config{
		Status: func() string { return "idle" },
		Logger: util.NopLogger(),
	})

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["state"])
	assert.EqualValues(t, 1, body["components"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	indexer.NewMetrics(reg)
	s := New(newStore(t, "Button"), Config{Gatherer: reg, Logger: util.NopLogger()})

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "compreg_cache_hits_total")
}

func TestMetrics_Disabled(t *testing.T) {
	s := New(newStore(t, "Button"), Config{Logger: util.NopLogger()})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(newStore(t, "Button"), Config{Addr: addr, Logger: util.NopLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
