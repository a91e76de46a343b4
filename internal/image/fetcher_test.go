package image

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/filestore"
	"github.com/xxxsen/apisync/internal/repo"
	"github.com/xxxsen/apisync/internal/testutil"
)

func newTestFetcher(t *testing.T) (*Fetcher, string, *repo.AssetRepo) {
	t.Helper()
	dir := t.TempDir()
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	assets := repo.NewAssetRepo(testutil.OpenTestDB(t))
	f := NewFetcher(config.ImageConfig{
		TimeoutSeconds:  5,
		MaxBytes:        1024,
		RatePerSecond:   100,
		Burst:           10,
		CacheSize:       16,
		CacheTTLMinutes: 10,
	}, store, assets)
	return f, dir, assets
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		root, value, want string
	}{
		{root: "https://cdn.example.com", value: "/img/a.png", want: "https://cdn.example.com/img/a.png"},
		{root: "https://cdn.example.com/", value: "img/a.png", want: "https://cdn.example.com/img/a.png"},
		{root: "https://cdn.example.com", value: "http://other/a.png", want: "http://other/a.png"},
		{root: "http://cdn.example.com", value: "//static/a.png", want: "http://static/a.png"},
		{root: "", value: "/a.png", want: "/a.png"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ResolveURL(tt.root, tt.value))
	}
}

func TestFetchStoresAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png"))
	}))
	defer srv.Close()

	f, dir, assets := newTestFetcher(t)
	ctx := context.Background()
	url := srv.URL + "/photos/a.png"

	id, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, int32(1), hits.Load())

	asset, err := assets.GetBySourceURL(ctx, url)
	require.NoError(t, err)
	require.Equal(t, id, asset.ID)
	require.Equal(t, "image/png", asset.ContentType)
	require.Equal(t, ".png", filepath.Ext(asset.FileKey))
	data, err := os.ReadFile(filepath.Join(dir, asset.FileKey))
	require.NoError(t, err)
	require.Equal(t, "fake-png", string(data))
}

func TestFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big.png" {
			_, _ = w.Write(make([]byte, 2048))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f, _, _ := newTestFetcher(t)
	ctx := context.Background()
	_, err := f.Fetch(ctx, srv.URL+"/missing.png")
	require.Error(t, err)
	_, err = f.Fetch(ctx, srv.URL+"/big.png")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "/relative.png")
	require.Error(t, err)
}
