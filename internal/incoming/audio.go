package incoming

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Player plays the ring cue until stopped.
type Player interface {
	Play()
	Stop()
}

// Permission reports whether audio playback has been allowed for this
// session.
type Permission interface {
	AudioGranted() bool
}

// SessionPermission is an in-memory permission flag that lives as long as
// the process.
type SessionPermission struct {
	granted atomic.Bool
}

func (p *SessionPermission) Grant()             { p.granted.Store(true) }
func (p *SessionPermission) Revoke()            { p.granted.Store(false) }
func (p *SessionPermission) AudioGranted() bool { return p.granted.Load() }

type NopPlayer struct{}

func (NopPlayer) Play() {}
func (NopPlayer) Stop() {}

// BellPlayer rings the terminal bell on an interval until stopped.
type BellPlayer struct {
	w        io.Writer
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewBellPlayer(w io.Writer, interval time.Duration) *BellPlayer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &BellPlayer{w: w, interval: interval}
}

func (b *BellPlayer) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	stop := make(chan struct{})
	b.stop = stop

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			fmt.Fprint(b.w, "\a")
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()
}

func (b *BellPlayer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}
