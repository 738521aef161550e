package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyClip is returned when a player is asked to load no audio
var ErrEmptyClip = errors.New("empty audio clip")

// Player loads clips into playable tracks
type Player interface {
	Load(clip []byte) (Track, error)
}

// Track is one loaded clip. Implementations must be safe for concurrent use.
type Track interface {
	Play() error
	Pause()
	Seek(pos time.Duration)
	SetRate(rate float64)
	Position() time.Duration
	Duration() time.Duration
	Ended() bool
	Close() error
}

// ClockPlayer plays clips against the wall clock without producing sound.
// Duration is derived from clip size at a fixed byte rate, which matches
// constant-bitrate narration closely enough for progress and seeking.
type ClockPlayer struct {
	bytesPerSecond int
	now            func() time.Time
}

// NewClockPlayer creates a player for clips encoded at bytesPerSecond
func NewClockPlayer(bytesPerSecond int) *ClockPlayer {
	if bytesPerSecond <= 0 {
		bytesPerSecond = 16000
	}
	return &ClockPlayer{bytesPerSecond: bytesPerSecond, now: time.Now}
}

// Load creates a paused track at position zero
func (p *ClockPlayer) Load(clip []byte) (Track, error) {
	if len(clip) == 0 {
		return nil, ErrEmptyClip
	}
	d := time.Duration(float64(len(clip)) / float64(p.bytesPerSecond) * float64(time.Second))
	return &clockTrack{
		now:      p.now,
		duration: d,
		rate:     1.0,
	}, nil
}

type clockTrack struct {
	mu       sync.Mutex
	now      func() time.Time
	duration time.Duration
	rate     float64
	base     time.Duration // position at anchor
	anchor   time.Time
	playing  bool
	closed   bool
}

var errTrackClosed = errors.New("track closed")

func (t *clockTrack) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTrackClosed
	}
	if t.playing {
		return nil
	}
	if t.base >= t.duration {
		t.base = 0
	}
	t.anchor = t.now()
	t.playing = true
	return nil
}

func (t *clockTrack) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = t.positionLocked()
	t.playing = false
}

func (t *clockTrack) Seek(pos time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos > t.duration {
		pos = t.duration
	}
	t.base = pos
	t.anchor = t.now()
}

func (t *clockTrack) SetRate(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rate <= 0 {
		return
	}
	t.base = t.positionLocked()
	t.anchor = t.now()
	t.rate = rate
}

func (t *clockTrack) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

func (t *clockTrack) positionLocked() time.Duration {
	if !t.playing {
		return t.base
	}
	pos := t.base + time.Duration(float64(t.now().Sub(t.anchor))*t.rate)
	if pos > t.duration {
		pos = t.duration
	}
	return pos
}

func (t *clockTrack) Duration() time.Duration {
	return t.duration
}

func (t *clockTrack) Ended() bool {
	return t.Position() >= t.duration
}

func (t *clockTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	t.closed = true
	return nil
}
