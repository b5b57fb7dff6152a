package album

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Item is one photo of a Telegram media group.
type Item struct {
	ChatID       int64
	UserID       int64
	MessageID    int
	MediaGroupID string
	Caption      string
	FileID       string
}

// Album is a flushed media group. FileIDs follow message order, so the
// first photo the user picked is the source and the second the style
// reference.
type Album struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
}

func (a Album) Source() string {
	if len(a.FileIDs) == 0 {
		return ""
	}
	return a.FileIDs[0]
}

func (a Album) StyleReference() string {
	if len(a.FileIDs) < 2 {
		return ""
	}
	return a.FileIDs[1]
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Album)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Album)
	pending  map[string]*pendingAlbum
	closed   bool
}

type pendingAlbum struct {
	chatID  int64
	userID  int64
	caption string
	items   []Item
	timer   *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		pending:  make(map[string]*pendingAlbum),
	}
}

// Add buffers item and restarts the group's debounce timer. Items without a
// media group or file are ignored.
func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	pa, ok := a.pending[key]
	if !ok {
		pa = &pendingAlbum{chatID: item.ChatID, userID: item.UserID}
		a.pending[key] = pa
	}
	pa.items = append(pa.items, item)
	if item.Caption != "" {
		pa.caption = item.Caption
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

// Close flushes every pending album right away and ignores later items.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	keys := make([]string, 0, len(a.pending))
	for key, pa := range a.pending {
		if pa.timer != nil {
			pa.timer.Stop()
		}
		keys = append(keys, key)
	}
	a.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		a.flush(key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.pending[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	onFlush := a.onFlush
	a.mu.Unlock()

	sort.SliceStable(pa.items, func(i, j int) bool {
		return pa.items[i].MessageID < pa.items[j].MessageID
	})
	album := Album{ChatID: pa.chatID, UserID: pa.userID, Caption: pa.caption}
	for _, it := range pa.items {
		album.FileIDs = append(album.FileIDs, it.FileID)
	}

	if onFlush != nil {
		onFlush(album)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
