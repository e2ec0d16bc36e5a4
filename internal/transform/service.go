// Package transform turns reference photos plus a prompt into generated
// images and stores them.
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/gemini"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/storage"
)

const Namespace = "generated"

var (
	ErrNoImages = errors.New("no reference images")
	ErrNoPrompt = errors.New("prompt is empty")
)

type Request struct {
	OwnerID     string
	Images      []string
	Prompt      string
	Quality     string
	N           int
	AspectRatio string
}

type Image struct {
	URL string `json:"url"`
}

// Editor is the image model.
type Editor interface {
	EditImage(ctx context.Context, prompt string, images []gemini.ImageInput, opts gemini.ImageOptions) ([]string, error)
}

type Options struct {
	Editor      Editor
	Storage     storage.Store
	Concurrency int
	Logger      *slog.Logger
}

type Service struct {
	editor      Editor
	store       storage.Store
	concurrency int
	logger      *slog.Logger
}

func New(opts Options) *Service {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		editor:      opts.Editor,
		store:       opts.Storage,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ModifyImage produces req.N images. Each variant is one model call; any
// failing variant fails the whole request. Returned images keep variant order.
func (s *Service) ModifyImage(ctx context.Context, req Request) ([]Image, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrNoPrompt
	}
	n := req.N
	if n <= 0 {
		n = 1
	}
	if strings.EqualFold(req.Quality, "high") {
		prompt += "\n\nRender at the highest available quality and resolution."
	}

	inputs, err := s.loadReferences(ctx, req.Images)
	if err != nil {
		return nil, err
	}

	out := make([]Image, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			variantPrompt := prompt
			if n > 1 {
				variantPrompt += fmt.Sprintf("\n\nThis is variant %d of %d. Vary pose and expression slightly while keeping the same person.", i+1, n)
			}

			images, err := s.editor.EditImage(gctx, variantPrompt, inputs, gemini.ImageOptions{AspectRatio: req.AspectRatio})
			if err != nil {
				return fmt.Errorf("variant %d: %w", i+1, err)
			}
			if len(images) == 0 {
				return fmt.Errorf("variant %d: %w", i+1, gemini.ErrNoImage)
			}

			url, err := s.save(gctx, req.OwnerID, i, images[0])
			if err != nil {
				return fmt.Errorf("variant %d: %w", i+1, err)
			}
			out[i] = Image{URL: url}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("images generated", "owner", req.OwnerID, "count", n, "references", len(inputs))
	return out, nil
}

func (s *Service) loadReferences(ctx context.Context, urls []string) ([]gemini.ImageInput, error) {
	inputs := make([]gemini.ImageInput, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			data, contentType, err := s.store.Fetch(gctx, u)
			if err != nil {
				return fmt.Errorf("fetch reference %d: %w", i+1, err)
			}
			inputs[i] = gemini.NewImageInput(data, contentType)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func (s *Service) save(ctx context.Context, ownerID string, index int, dataURL string) (string, error) {
	data, contentType, err := gemini.DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	key := storage.ObjectKey(Namespace, ownerID, fmt.Sprintf("headshot-%d", index+1), contentType, data)
	obj, err := s.store.Upload(ctx, key, bytes.NewReader(data), storage.UploadOptions{
		Upsert:      true,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store generated image: %w", err)
	}
	return obj.URL, nil
}
