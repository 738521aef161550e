package audio

import (
	"sync"
	"time"
)

// Progress is one playback position report
type Progress struct {
	Position time.Duration
	Duration time.Duration
	Playing  bool
}

// Fraction returns the position as a share of the clip, 0 when unknown
func (p Progress) Fraction() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return float64(p.Position) / float64(p.Duration)
}

// Session owns at most one loaded track. Every control is a no-op when no
// clip is prepared. Position is polled on a fixed interval while playing.
type Session struct {
	player       Player
	pollInterval time.Duration

	mu         sync.Mutex
	track      Track
	playing    bool
	speed      float64
	stopPoll   chan struct{} // non-nil while the poller runs
	onProgress func(Progress)
	onEnded    func()
}

// NewSession creates a session over player
func NewSession(player Player, pollInterval time.Duration, speed float64) *Session {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if speed <= 0 {
		speed = 1.0
	}
	return &Session{
		player:       player,
		pollInterval: pollInterval,
		speed:        speed,
	}
}

// OnProgress sets the callback invoked on every poll tick
func (s *Session) OnProgress(fn func(Progress)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// OnEnded sets the callback invoked when a clip plays to the end
func (s *Session) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

// Prepare tears down the current track and loads clip without playing it
func (s *Session) Prepare(clip []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	track, err := s.player.Load(clip)
	if err != nil {
		return err
	}
	track.SetRate(s.speed)
	s.track = track
	return nil
}

// Play starts or resumes playback
func (s *Session) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil || s.playing {
		return
	}
	if err := s.track.Play(); err != nil {
		return
	}
	s.playing = true
	s.startPollLocked()
}

// Pause keeps the position and stops polling
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return
	}
	s.track.Pause()
	s.playing = false
	s.stopPollLocked()
}

// Stop pauses, rewinds and releases the track. A following Play is a no-op
// until another clip is prepared.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Restart rewinds to the start, playing on if playback was running
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return
	}
	s.track.Seek(0)
}

// Seek moves to fraction (clamped to [0,1]) of the clip
func (s *Session) Seek(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	s.track.Seek(time.Duration(fraction * float64(s.track.Duration())))
}

// SetSpeed changes the playback rate; it carries over to later clips
func (s *Session) SetSpeed(multiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil || multiplier <= 0 {
		return
	}
	s.speed = multiplier
	s.track.SetRate(multiplier)
}

// Speed returns the current playback rate
func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// HasClip reports whether a track is loaded
func (s *Session) HasClip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}

// Playing reports whether playback is running
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Progress returns the current position
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Close releases the track
func (s *Session) Close() error {
	s.Stop()
	return nil
}

func (s *Session) progressLocked() Progress {
	if s.track == nil {
		return Progress{}
	}
	return Progress{
		Position: s.track.Position(),
		Duration: s.track.Duration(),
		Playing:  s.playing,
	}
}

// polling reports whether a poller is running
func (s *Session) polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopPoll != nil
}

func (s *Session) teardownLocked() {
	s.stopPollLocked()
	if s.track == nil {
		return
	}
	s.track.Pause()
	s.track.Seek(0)
	s.track.Close()
	s.track = nil
	s.playing = false
}

func (s *Session) startPollLocked() {
	s.stopPollLocked()
	stop := make(chan struct{})
	s.stopPoll = stop
	go s.poll(s.track, stop)
}

func (s *Session) stopPollLocked() {
	if s.stopPoll != nil {
		close(s.stopPoll)
		s.stopPoll = nil
	}
}

// poll reports progress until stopped. On natural completion the track is
// left paused at the start.
func (s *Session) poll(track Track, stop chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.track != track || s.stopPoll != stop {
			s.mu.Unlock()
			return
		}
		ended := track.Ended()
		if ended {
			track.Pause()
			track.Seek(0)
			s.playing = false
			s.stopPollLocked()
		}
		p := s.progressLocked()
		onProgress, onEnded := s.onProgress, s.onEnded
		s.mu.Unlock()

		if onProgress != nil {
			onProgress(p)
		}
		if ended {
			if onEnded != nil {
				onEnded()
			}
			return
		}
	}
}
