package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gosimple/slug"
)

var (
	ErrExists     = errors.New("object already exists")
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
	ErrForeignURL = errors.New("url does not belong to this store")
)

type UploadOptions struct {
	Upsert      bool
	ContentType string
}

type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// Store is the object storage used for reference photos and generated images.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, opts UploadOptions) (Object, error)
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// ObjectKey builds a content-addressed key under the owner's namespace:
// <namespace>/<owner>/<sha256 prefix>-<slug><ext>.
func ObjectKey(namespace, ownerID, fileName, contentType string, data []byte) string {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:16]

	file := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := strings.ToLower(path.Ext(file))
	base := strings.TrimSuffix(file, path.Ext(file))
	// path.Ext returns "." for names ending in a dot.
	if ext == "" || ext == "." || len(ext) > 6 {
		ext = extensionFor(contentType)
	}

	name := slug.Make(base)
	if name == "" {
		name = "image"
	}
	if len(name) > 48 {
		name = strings.TrimRight(name[:48], "-")
	}

	owner := slug.Make(ownerID)
	if owner == "" {
		owner = "anonymous"
	}

	return path.Join(namespace, owner, hash+"-"+name+ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, p := range strings.Split(key, "/") {
		if p == "" || p == "." || p == ".." {
			return false
		}
	}
	return true
}
