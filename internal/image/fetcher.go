package image

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/apisync/internal/config"
	"github.com/xxxsen/apisync/internal/filestore"
	"github.com/xxxsen/apisync/internal/metrics"
	"github.com/xxxsen/apisync/internal/model"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

type AssetStore interface {
	Save(ctx context.Context, asset *model.Asset) (string, error)
}

// Fetcher downloads remote images into the file store and hands back the
// asset id that image attributes point at.
type Fetcher struct {
	client   *http.Client
	store    filestore.Store
	assets   AssetStore
	limiter  *rate.Limiter
	cache    *expirable.LRU[string, string]
	maxBytes int64
	timeout  time.Duration
}

func NewFetcher(cfg config.ImageConfig, store filestore.Store, assets AssetStore) *Fetcher {
	return &Fetcher{
		client:   &http.Client{},
		store:    store,
		assets:   assets,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cache:    expirable.NewLRU[string, string](cfg.CacheSize, nil, time.Duration(cfg.CacheTTLMinutes)*time.Minute),
		maxBytes: cfg.MaxBytes,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// ResolveURL prefixes relative image references with the job's image root.
func ResolveURL(root, value string) string {
	value = strings.TrimSpace(value)
	u, err := url.Parse(value)
	if err == nil && u.IsAbs() {
		return value
	}
	if strings.HasPrefix(value, "//") {
		scheme := "https"
		if r, err := url.Parse(root); err == nil && r.Scheme != "" {
			scheme = r.Scheme
		}
		return scheme + ":" + value
	}
	if root == "" {
		return value
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(value, "/")
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if id, ok := f.cache.Get(rawURL); ok {
		metrics.ImageFetches.WithLabelValues("cached").Inc()
		return id, nil
	}
	id, err := f.download(ctx, rawURL)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("failed").Inc()
		return "", err
	}
	metrics.ImageFetches.WithLabelValues("stored").Inc()
	f.cache.Add(rawURL, id)
	return id, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("invalid image url %q: %w", rawURL, appErr.ErrInvalid)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("image %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > f.maxBytes {
		return "", fmt.Errorf("image %s exceeds %d bytes", rawURL, f.maxBytes)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := fileKey(rawURL, u.Path, contentType)
	if err := f.store.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("store image %s: %w", rawURL, err)
	}
	now := time.Now().Unix()
	id, err := f.assets.Save(ctx, &model.Asset{
		ID:          uuid.NewString(),
		SourceURL:   rawURL,
		FileKey:     key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Ctime:       now,
		Mtime:       now,
	})
	if err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Debug("image stored",
		zap.String("url", rawURL),
		zap.String("file_key", key),
		zap.Int("size", len(data)),
	)
	return id, nil
}

func fileKey(rawURL, urlPath, contentType string) string {
	sum := sha1.Sum([]byte(rawURL))
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" || len(ext) > 6 {
		ext = ""
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	return hex.EncodeToString(sum[:]) + ext
}
