package audio

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestSession(t *testing.T, bps int) *Session {
	t.Helper()
	s := NewSession(NewClockPlayer(bps), 5*time.Millisecond, 1.0)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionNoClipIsNoop(t *testing.T) {
	s := newTestSession(t, 1000)

	s.Play()
	s.Pause()
	s.Stop()
	s.Restart()
	s.Seek(0.5)
	s.SetSpeed(2)

	if s.HasClip() || s.Playing() || s.polling() {
		t.Error("Controls without a clip must not create state")
	}
	if s.Speed() != 1.0 {
		t.Errorf("SetSpeed without a clip should be ignored, got %v", s.Speed())
	}
}

func TestSessionPrepareDoesNotPlay(t *testing.T) {
	s := newTestSession(t, 1000)

	if err := s.Prepare(make([]byte, 1000)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !s.HasClip() {
		t.Fatal("Expected a loaded clip")
	}
	if s.Playing() || s.polling() {
		t.Error("Prepare must not start playback")
	}
}

func TestSessionStopReleasesHandle(t *testing.T) {
	s := newTestSession(t, 1000)
	s.Prepare(make([]byte, 10000))
	s.Play()

	if !s.Playing() || !s.polling() {
		t.Fatal("Expected playback with an active poller")
	}

	s.Stop()
	if s.HasClip() {
		t.Error("Stop must release the track")
	}
	if s.polling() {
		t.Error("Stop must clear the poll timer")
	}

	s.Play()
	if s.Playing() || s.polling() {
		t.Error("Play after Stop must be a no-op")
	}
}

func TestSessionPrepareTearsDownPrevious(t *testing.T) {
	s := newTestSession(t, 1000)
	s.Prepare(make([]byte, 10000))
	s.Play()

	if err := s.Prepare(make([]byte, 2000)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if s.Playing() || s.polling() {
		t.Error("Preparing a new clip must stop the previous one")
	}
	if d := s.Progress().Duration; d != 2*time.Second {
		t.Errorf("Expected the new clip loaded, got duration %v", d)
	}
}

func TestSessionPauseStopsPolling(t *testing.T) {
	s := newTestSession(t, 1000)
	s.Prepare(make([]byte, 10000))
	s.Play()
	s.Pause()

	if s.Playing() || s.polling() {
		t.Error("Pause must stop playback and polling")
	}
	if !s.HasClip() {
		t.Error("Pause must keep the track")
	}
}

func TestSessionSeekAndSpeed(t *testing.T) {
	s := newTestSession(t, 1000)
	s.Prepare(make([]byte, 10000))

	s.Seek(0.5)
	if pos := s.Progress().Position; pos != 5*time.Second {
		t.Errorf("Expected 5s, got %v", pos)
	}
	s.Seek(3)
	if f := s.Progress().Fraction(); f != 1 {
		t.Errorf("Seek should clamp to the end, got fraction %v", f)
	}

	s.SetSpeed(1.5)
	s.Prepare(make([]byte, 1000))
	if s.Speed() != 1.5 {
		t.Errorf("Speed should carry over to the next clip, got %v", s.Speed())
	}

	s.Restart()
	if pos := s.Progress().Position; pos != 0 {
		t.Errorf("Restart should rewind, got %v", pos)
	}
	s.SetSpeed(3)
	if s.Speed() != 3 {
		t.Errorf("Speed above 2x should be accepted, got %v", s.Speed())
	}
	s.SetSpeed(-1)
	if s.Speed() != 3 {
		t.Errorf("Non-positive speed should be ignored, got %v", s.Speed())
	}
}

func TestSessionRestartWhilePlaying(t *testing.T) {
	s := newTestSession(t, 1000)
	s.Prepare(make([]byte, 10000))
	s.Play()
	s.Seek(0.5)

	s.Restart()
	if !s.Playing() || !s.polling() {
		t.Fatal("Restart should keep a playing track playing")
	}
	if pos := s.Progress().Position; pos > time.Second {
		t.Errorf("Restart should rewind to the start, got %v", pos)
	}
}

func TestSessionNaturalCompletion(t *testing.T) {
	s := newTestSession(t, 1000)

	var ended atomic.Int32
	var ticks atomic.Int32
	s.OnEnded(func() { ended.Add(1) })
	s.OnProgress(func(Progress) { ticks.Add(1) })

	s.Prepare(make([]byte, 30)) // 30ms
	s.Play()

	deadline := time.Now().Add(time.Second)
	for ended.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if ended.Load() != 1 {
		t.Fatalf("Expected one end notification, got %d", ended.Load())
	}
	if ticks.Load() == 0 {
		t.Error("Expected progress ticks while playing")
	}
	if s.Playing() || s.polling() {
		t.Error("Completion must stop playback and polling")
	}
	if !s.HasClip() {
		t.Error("Completed clip should stay loaded")
	}
	if pos := s.Progress().Position; pos != 0 {
		t.Errorf("Completion should return to the start, got %v", pos)
	}
}
