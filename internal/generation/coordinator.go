package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/events"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/notify"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/progress"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/records"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/transform"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrNoResults      = errors.New("transformer returned no images")
)

type Request struct {
	OwnerID       string
	ReferenceURLs []string
	StyleID       string
	BackgroundID  string
	TermsAccepted bool
}

type Result struct {
	ID   string
	URLs []string
}

// Transformer is the AI image service.
type Transformer interface {
	ModifyImage(ctx context.Context, req transform.Request) ([]transform.Image, error)
}

type Options struct {
	Records     records.Store
	Transformer Transformer
	Events      events.Publisher
	Progress    progress.Options
	Variants    int
	// Timeout bounds the transformer call. Zero means no bound beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
	NewID   func() string
}

type Coordinator struct {
	records     records.Store
	transformer Transformer
	events      events.Publisher
	progress    *progress.Simulator
	variants    int
	timeout     time.Duration
	logger      *slog.Logger
	newID       func() string
}

func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	publisher := opts.Events
	if publisher == nil {
		publisher = events.Nop{}
	}

	newID := opts.NewID
	if newID == nil {
		newID = func() string { return "gen_" + uuid.NewString() }
	}

	return &Coordinator{
		records:     opts.Records,
		transformer: opts.Transformer,
		events:      publisher,
		progress:    progress.New(opts.Progress),
		variants:    opts.Variants,
		timeout:     opts.Timeout,
		logger:      logger,
		newID:       newID,
	}
}

// Validate checks a request without side effects.
func Validate(req Request) error {
	switch {
	case strings.TrimSpace(req.OwnerID) == "":
		return fmt.Errorf("%w: owner id is empty", ErrInvalidRequest)
	case len(req.ReferenceURLs) == 0:
		return fmt.Errorf("%w: no reference images", ErrInvalidRequest)
	case !req.TermsAccepted:
		return fmt.Errorf("%w: terms not accepted", ErrInvalidRequest)
	}
	if _, ok := prompt.LookupStyle(req.StyleID); !ok {
		return fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, req.StyleID)
	}
	if _, ok := prompt.LookupBackground(req.BackgroundID); !ok {
		return fmt.Errorf("%w: unknown background %q", ErrInvalidRequest, req.BackgroundID)
	}
	return nil
}

// Run performs one generation. onProgress receives the simulated progress
// value; it ends at 100 on success and 0 on failure. Every failure after
// validation is reported through n.
func (c *Coordinator) Run(ctx context.Context, req Request, onProgress func(int), n notify.Notifier) (Result, error) {
	if err := Validate(req); err != nil {
		return Result{}, err
	}
	if n == nil {
		n = notify.Discard
	}

	id := c.newID()
	logger := c.logger.With("generation_id", id, "owner", req.OwnerID)

	err := c.records.Create(ctx, records.Record{
		ID:                 id,
		UserID:             req.OwnerID,
		ReferenceImages:    append([]string(nil), req.ReferenceURLs...),
		SelectedStyle:      req.StyleID,
		SelectedBackground: req.BackgroundID,
		GeneratedImages:    []string{},
		Status:             records.StatusProcessing,
	})
	if err != nil {
		logger.Error("failed to create generation record", "error", err)
		n.Notify(notify.GenerationFailed)
		return Result{}, fmt.Errorf("create generation record: %w", err)
	}
	c.publish(ctx, logger, events.KindStarted, id, req, nil, nil)

	run := c.progress.Start(onProgress)

	urls, err := c.generate(ctx, req)
	if err == nil {
		err = c.records.Update(ctx, id, records.Patch{
			Status:          records.StatusPtr(records.StatusCompleted),
			GeneratedImages: urls,
		})
		if err != nil {
			err = fmt.Errorf("complete generation record: %w", err)
		}
	}

	if err != nil {
		run.Stop(0)
		logger.Error("generation failed", "error", err)

		// Record the failure even when ctx was canceled.
		bg := context.WithoutCancel(ctx)
		if uerr := c.records.Update(bg, id, records.Patch{Status: records.StatusPtr(records.StatusFailed)}); uerr != nil {
			logger.Warn("failed to mark generation failed", "error", uerr)
		}
		c.publish(bg, logger, events.KindFailed, id, req, nil, err)
		n.Notify(notify.GenerationFailed)
		return Result{ID: id}, err
	}

	run.Stop(100)
	logger.Info("generation completed", "images", len(urls))
	c.publish(ctx, logger, events.KindCompleted, id, req, urls, nil)
	n.Notify(notify.GenerationSucceeded)
	return Result{ID: id, URLs: urls}, nil
}

func (c *Coordinator) generate(ctx context.Context, req Request) ([]string, error) {
	text, out := prompt.Build(prompt.Options{
		StyleID:      req.StyleID,
		BackgroundID: req.BackgroundID,
		Variants:     c.variants,
	})

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	images, err := c.transformer.ModifyImage(ctx, transform.Request{
		OwnerID:     req.OwnerID,
		Images:      req.ReferenceURLs,
		Prompt:      text,
		Quality:     out.Quality,
		N:           out.Count,
		AspectRatio: out.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("transform images: %w", err)
	}

	urls := make([]string, 0, len(images))
	for _, img := range images {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoResults
	}
	return urls, nil
}

func (c *Coordinator) publish(ctx context.Context, logger *slog.Logger, kind events.Kind, id string, req Request, urls []string, cause error) {
	ev := events.GenerationEvent{
		Kind:         kind,
		GenerationID: id,
		OwnerID:      req.OwnerID,
		StyleID:      req.StyleID,
		BackgroundID: req.BackgroundID,
		Images:       urls,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := c.events.PublishGeneration(ctx, ev); err != nil {
		logger.Warn("failed to publish generation event", "kind", kind, "error", err)
	}
}
