package player

import (
	"sync"

	"github.com/PapyKahan/rhap/audio"
)

// CurrentTrackInfo is the observable status spec.md §6 exposes to the UI
// layer: title, artist, negotiated format summary, and whether a render
// task is actively streaming.
type CurrentTrackInfo struct {
	mu          sync.RWMutex
	title       string
	artist      string
	format      audio.StreamParams
	isStreaming bool
}

// Snapshot returns a copy of the current status, safe to read
// concurrently with the controller updating it.
func (c *CurrentTrackInfo) Snapshot() CurrentTrackInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CurrentTrackInfo{
		title:       c.title,
		artist:      c.artist,
		format:      c.format,
		isStreaming: c.isStreaming,
	}
}

func (c *CurrentTrackInfo) Title() string             { return c.title }
func (c *CurrentTrackInfo) Artist() string             { return c.artist }
func (c *CurrentTrackInfo) Format() audio.StreamParams { return c.format }
func (c *CurrentTrackInfo) IsStreaming() bool          { return c.isStreaming }

func (c *CurrentTrackInfo) set(title, artist string, format audio.StreamParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
	c.artist = artist
	c.format = format
	c.isStreaming = true
}

func (c *CurrentTrackInfo) setStreaming(streaming bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isStreaming = streaming
}
