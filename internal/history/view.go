package history

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/prompt"
	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/records"
)

const (
	DefaultLimit    = 6
	DefaultPreviews = 4
)

// Entry is one past generation as shown on the dashboard.
type Entry struct {
	ID              string         `json:"id"`
	Style           string         `json:"style"`
	StyleName       string         `json:"style_name"`
	Background      string         `json:"background"`
	BackgroundName  string         `json:"background_name"`
	Status          records.Status `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	Previews        []string       `json:"previews"`
	TotalImages     int            `json:"total_images"`
	ReferenceImages int            `json:"reference_images"`
}

type Options struct {
	Records  records.Store
	Limit    int
	Previews int
	Logger   *slog.Logger
}

type View struct {
	records  records.Store
	limit    int
	previews int
	logger   *slog.Logger
}

func New(opts Options) *View {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	previews := opts.Previews
	if previews <= 0 {
		previews = DefaultPreviews
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &View{records: opts.Records, limit: limit, previews: previews, logger: logger}
}

// Recent lists the owner's latest generations, newest first. A store failure
// is logged and yields an empty list.
func (v *View) Recent(ctx context.Context, ownerID string) []Entry {
	list, err := v.records.List(ctx, records.Query{UserID: ownerID, Limit: v.limit})
	if err != nil {
		v.logger.Error("failed to load generation history", "owner", ownerID, "error", err)
		return []Entry{}
	}

	out := make([]Entry, 0, len(list))
	for _, r := range list {
		previews := r.GeneratedImages
		if len(previews) > v.previews {
			previews = previews[:v.previews]
		}

		e := Entry{
			ID:              r.ID,
			Style:           r.SelectedStyle,
			StyleName:       r.SelectedStyle,
			Background:      r.SelectedBackground,
			BackgroundName:  r.SelectedBackground,
			Status:          r.Status,
			CreatedAt:       r.CreatedAt,
			Previews:        append([]string{}, previews...),
			TotalImages:     len(r.GeneratedImages),
			ReferenceImages: len(r.ReferenceImages),
		}
		if o, ok := prompt.LookupStyle(r.SelectedStyle); ok {
			e.StyleName = o.Name
		}
		if o, ok := prompt.LookupBackground(r.SelectedBackground); ok {
			e.BackgroundName = o.Name
		}
		out = append(out, e)
	}
	return out
}
