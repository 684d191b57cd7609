package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/shopcache"
)

func run(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHOP_API_URL", apiURL)
	t.Setenv("SHOP_TOKEN_STORE", "memory")
	t.Setenv("SHOP_LOG_FORMAT", "slog")
	t.Setenv("SHOP_LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func catalogAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "18", r.URL.Query().Get("offset"))
		assert.Equal(t, "women", r.URL.Query().Get("gender"))
		_ = json.NewEncoder(w).Encode(shopcache.Page{Count: 20, Pages: 3, Products: []shopcache.Product{{ID: "7", Title: "Dress"}}})
	})
	mux.HandleFunc("/api/products/7", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(shopcache.Product{ID: "7", Title: "Dress", Slug: "dress"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProductsListJSON(t *testing.T) {
	srv := catalogAPI(t)
	out, err := run(t, srv.URL+"/api", "-o", "json", "products", "list", "--gender", "women", "--page", "3")
	require.NoError(t, err)

	var pg shopcache.Page
	require.NoError(t, json.Unmarshal([]byte(out), &pg))
	assert.Equal(t, 20, pg.Count)
	assert.Equal(t, shopcache.Params{Limit: 9, Offset: 18, Gender: "women"}, pg.Params)
}

func TestProductsGetYAML(t *testing.T) {
	srv := catalogAPI(t)
	out, err := run(t, srv.URL+"/api", "products", "get", "7")
	require.NoError(t, err)

	var p map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Dress", p["title"])
}

func TestCreateRequiresAdmin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	_, err := run(t, srv.URL+"/api", "products", "create", "--title", "Tee")
	assert.ErrorIs(t, err, errNotAdmin)
}

func TestRejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "http://localhost:1/api", "-o", "xml", "auth", "status")
	assert.Error(t, err)
}
