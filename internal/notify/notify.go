package notify

import "sync"

type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a transient, dismissible message shown to the user after an action.
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

type Notifier interface {
	Notify(Notice)
}

type Func func(Notice)

func (f Func) Notify(n Notice) {
	if f != nil {
		f(n)
	}
}

var Discard Notifier = Func(nil)

// Collector buffers notices produced while serving one request.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

func (c *Collector) Notify(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}

var (
	UploadFailed = Notice{
		Title:       "Upload Failed",
		Description: "Failed to upload image. Please try again.",
		Variant:     VariantDestructive,
	}
	TermsRequired = Notice{
		Title:       "Terms Required",
		Description: "Please accept the terms and conditions to continue.",
		Variant:     VariantDestructive,
	}
	UploadRequired = Notice{
		Title:       "Photos Required",
		Description: "Upload at least one photo to continue.",
		Variant:     VariantDestructive,
	}
	StyleRequired = Notice{
		Title:       "Style Required",
		Description: "Select a style to continue.",
		Variant:     VariantDestructive,
	}
	BackgroundRequired = Notice{
		Title:       "Background Required",
		Description: "Select a background to continue.",
		Variant:     VariantDestructive,
	}
	GenerationFailed = Notice{
		Title:       "Generation Failed",
		Description: "Failed to generate headshots. Please try again.",
		Variant:     VariantDestructive,
	}
	GenerationSucceeded = Notice{
		Title:       "Success!",
		Description: "Your professional headshots have been generated.",
		Variant:     VariantDefault,
	}
)
