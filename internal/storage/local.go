package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type LocalOptions struct {
	Root string
	// BaseURL is the public prefix files are served under, e.g.
	// "http://localhost:8080/files".
	BaseURL string
	Logger  *slog.Logger
}

// Local stores objects on disk and serves them over HTTP.
type Local struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

func NewLocal(opts LocalOptions) (*Local, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, errors.New("storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Local{
		root:    root,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger,
	}, nil
}

func (l *Local) Upload(ctx context.Context, key string, r io.Reader, opts UploadOptions) (Object, error) {
	if !validKey(key) {
		return Object{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	dst := filepath.Join(l.root, filepath.FromSlash(key))
	if !opts.Upsert {
		if _, err := os.Stat(dst); err == nil {
			return Object{}, fmt.Errorf("%w: %s", ErrExists, key)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Object{}, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Object{}, fmt.Errorf("commit object: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}

	l.logger.Debug("object stored", "key", key, "bytes", n)
	return Object{
		Key:         key,
		URL:         l.baseURL + "/" + key,
		ContentType: contentType,
		Size:        n,
	}, nil
}

func (l *Local) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	key, ok := l.KeyFor(url)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}

// KeyFor maps a public URL produced by this store back to its key.
func (l *Local) KeyFor(url string) (string, bool) {
	prefix := l.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if !validKey(key) {
		return "", false
	}
	return key, true
}

// Handler serves stored objects; mount it under the BaseURL path.
func (l *Local) Handler() http.Handler {
	files := http.FileServer(http.Dir(l.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
