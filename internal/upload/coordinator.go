package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
)

const Namespace = "headshots"

var (
	ErrNoFiles   = errors.New("no files to upload")
	ErrNoOwner   = errors.New("owner id is empty")
	ErrNotImage  = errors.New("file is not an image")
	ErrEmptyFile = errors.New("file is empty")
)

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Result struct {
	// URLs holds the public URLs of the files that uploaded, in input order.
	URLs   []string
	Failed []Failure
}

type Failure struct {
	Index int
	Name  string
	Err   error
}

type Options struct {
	Storage     storage.Store
	Concurrency int
	Logger      *slog.Logger
}

type Coordinator struct {
	store       storage.Store
	concurrency int
	logger      *slog.Logger
}

func New(opts Options) *Coordinator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Coordinator{
		store:       opts.Storage,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Upload stores every file independently. A failing file is reported through
// n and left out of the URL list; it never aborts the others.
func (c *Coordinator) Upload(ctx context.Context, ownerID string, files []File, n notify.Notifier) (Result, error) {
	if len(files) == 0 {
		return Result{}, ErrNoFiles
	}
	if strings.TrimSpace(ownerID) == "" {
		return Result{}, ErrNoOwner
	}
	if n == nil {
		n = notify.Discard
	}

	urls := make([]string, len(files))
	errs := make([]error, len(files))

	eg := new(errgroup.Group)
	eg.SetLimit(c.concurrency)
	for i, f := range files {
		eg.Go(func() error {
			urls[i], errs[i] = c.uploadOne(ctx, ownerID, f)
			return nil
		})
	}
	_ = eg.Wait()

	var res Result
	for i, f := range files {
		if errs[i] != nil {
			c.logger.Error("upload failed", "owner", ownerID, "file", f.Name, "err", errs[i])
			n.Notify(notify.UploadFailed)
			res.Failed = append(res.Failed, Failure{Index: i, Name: f.Name, Err: errs[i]})
			continue
		}
		res.URLs = append(res.URLs, urls[i])
	}

	c.logger.Info("upload batch done", "owner", ownerID, "files", len(files), "uploaded", len(res.URLs), "failed", len(res.Failed))
	return res, nil
}

func (c *Coordinator) uploadOne(ctx context.Context, ownerID string, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.Data) == 0 {
		return "", ErrEmptyFile
	}

	contentType := normalizeContentType(f.ContentType, f.Data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}

	key := storage.ObjectKey(Namespace, ownerID, f.Name, contentType, f.Data)
	obj, err := c.store.Upload(ctx, key, bytes.NewReader(f.Data), storage.UploadOptions{
		Upsert:      true,
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

func normalizeContentType(declared string, data []byte) string {
	mimeType := strings.TrimSpace(declared)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return strings.ToLower(mimeType)
}
