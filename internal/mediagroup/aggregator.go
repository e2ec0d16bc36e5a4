package mediagroup

import (
	"sync"
	"time"
)

// DefaultMaxPhotos is how many reference photos one album may contribute.
const DefaultMaxPhotos = 5

// Item is one photo update that belongs to an album.
type Item struct {
	ChatID       int64
	UserID       int64
	Username     string
	MediaGroupID string
	Caption      string
	FileID       string
}

// Group is a complete album, ready to become one upload batch.
type Group struct {
	ChatID   int64
	UserID   int64
	Username string
	Caption  string
	FileIDs  []string
	// Dropped counts photos past the per-album limit.
	Dropped int
}

type Options struct {
	Debounce time.Duration
	// MaxPhotos caps the photos kept per album; the rest are counted in
	// Group.Dropped.
	MaxPhotos int
	OnFlush   func(Group)
}

// Aggregator collects the photos of a Telegram album, which arrive as
// separate updates sharing a media group id, into one upload batch.
type Aggregator struct {
	mu        sync.Mutex
	debounce  time.Duration
	maxPhotos int
	onFlush   func(Group)
	albums    map[albumKey]*album
	closed    bool
}

type albumKey struct {
	chatID       int64
	mediaGroupID string
}

type album struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}
	maxPhotos := opts.MaxPhotos
	if maxPhotos <= 0 {
		maxPhotos = DefaultMaxPhotos
	}

	return &Aggregator{
		debounce:  debounce,
		maxPhotos: maxPhotos,
		onFlush:   opts.OnFlush,
		albums:    make(map[albumKey]*album),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}
	key := albumKey{chatID: item.ChatID, mediaGroupID: item.MediaGroupID}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	al, ok := a.albums[key]
	if !ok {
		al = &album{group: Group{
			ChatID:   item.ChatID,
			UserID:   item.UserID,
			Username: item.Username,
		}}
		a.albums[key] = al
	}
	if item.Caption != "" {
		al.group.Caption = item.Caption
	}
	al.group.FileIDs = append(al.group.FileIDs, item.FileID)

	if al.timer != nil {
		al.timer.Stop()
	}
	al.timer = time.AfterFunc(a.debounce, func() { a.flush(key) })
}

func (a *Aggregator) flush(key albumKey) {
	a.mu.Lock()
	if _, ok := a.albums[key]; !ok {
		a.mu.Unlock()
		return
	}
	group, onFlush := a.takeLocked(key)
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func (a *Aggregator) takeLocked(key albumKey) (Group, func(Group)) {
	al := a.albums[key]
	delete(a.albums, key)
	group := al.group
	if extra := len(group.FileIDs) - a.maxPhotos; extra > 0 {
		group.FileIDs = group.FileIDs[:a.maxPhotos]
		group.Dropped = extra
	}
	return group, a.onFlush
}

// Pending reports how many albums are still waiting for their debounce.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.albums)
}

// Close stops accepting items and flushes every pending album immediately.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	keys := make([]albumKey, 0, len(a.albums))
	for key, al := range a.albums {
		if al.timer != nil {
			al.timer.Stop()
		}
		keys = append(keys, key)
	}
	a.mu.Unlock()

	for _, key := range keys {
		a.flush(key)
	}
}
