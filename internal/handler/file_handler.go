package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/apisync/internal/filestore"
	"github.com/xxxsen/apisync/internal/model"
)

type AssetLookup interface {
	GetByID(ctx context.Context, id string) (*model.Asset, error)
}

// FileHandler serves downloaded images. Stores with public URLs get a redirect,
// the local store streams the file.
type FileHandler struct {
	store  filestore.Store
	assets AssetLookup
}

func NewFileHandler(store filestore.Store, assets AssetLookup) *FileHandler {
	return &FileHandler{store: store, assets: assets}
}

func (h *FileHandler) Get(c *gin.Context) {
	key := c.Param("key")
	h.serve(c, key, mime.TypeByExtension(filepath.Ext(key)))
}

// Asset serves a file by the asset id written into record attributes.
func (h *FileHandler) Asset(c *gin.Context) {
	asset, err := h.assets.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.serve(c, asset.FileKey, asset.ContentType)
}

func (h *FileHandler) serve(c *gin.Context, key, contentType string) {
	if key == "" || filepath.Base(key) != key {
		c.Status(http.StatusBadRequest)
		return
	}
	if linker, ok := h.store.(filestore.Linker); ok {
		if target := linker.URL(key); target != "" {
			c.Redirect(http.StatusFound, target)
			return
		}
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, filestore.ErrOpenUnsupported) && !os.IsNotExist(err) {
			logutil.GetLogger(c.Request.Context()).Warn("open stored file failed", zap.String("key", key), zap.Error(err))
		}
		c.Status(http.StatusNotFound)
		return
	}
	defer func() { _ = file.Close() }()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	_, _ = file.Seek(0, io.SeekStart)
	_, _ = io.Copy(c.Writer, file)
}
