// Package audio plays short synthesized cues for simulation events: a click
// when particles touch and a two-note blip when the detection mode changes.
// Audio is optional; every method is safe to call when no output device
// could be opened.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/event"
)

const (
	sampleRate = beep.SampleRate(48000)

	// DefaultMinGap is the shortest time between two contact clicks
	DefaultMinGap = 60 * time.Millisecond

	clickLength = 30 * time.Millisecond
	blipLength  = 70 * time.Millisecond
)

// SoundManager owns the mixer feeding the speaker
type SoundManager struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool

	minGap    time.Duration
	lastClick time.Time
	now       func() time.Time
}

// NewSoundManager creates a sound manager. Contact clicks closer together
// than minGap are dropped; minGap <= 0 selects DefaultMinGap.
func NewSoundManager(minGap time.Duration) *SoundManager {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	return &SoundManager{
		mixer:  &beep.Mixer{},
		minGap: minGap,
		now:    time.Now,
	}
}

// Initialize opens the audio device
func (sm *SoundManager) Initialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	if err := speaker.Init(sampleRate, sampleRate.N(time.Millisecond*100)); err != nil {
		return err
	}

	speaker.Play(sm.mixer)
	sm.initialized = true
	return nil
}

// Cleanup stops all sounds
func (sm *SoundManager) Cleanup() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return
	}

	speaker.Lock()
	sm.mixer.Clear()
	speaker.Unlock()
	sm.initialized = false
}

func (sm *SoundManager) add(s beep.Streamer) {
	speaker.Lock()
	sm.mixer.Add(s)
	speaker.Unlock()
}

// PlayContact clicks for a frame with the given number of contacts. Pitch
// rises with the count. It reports whether a click was queued.
func (sm *SoundManager) PlayContact(contacts int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized || contacts <= 0 {
		return false
	}
	now := sm.now()
	if now.Sub(sm.lastClick) < sm.minGap {
		return false
	}
	sm.lastClick = now

	freq := 440 + 20*float64(min(contacts, 40))
	sm.add(beep.Take(sampleRate.N(clickLength), NewClickGenerator(sampleRate, freq)))
	return true
}

// PlayModeSwitch plays a rising blip when switching to the quadtree and a
// falling one when switching to brute force.
func (sm *SoundManager) PlayModeSwitch(to string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return
	}

	first, second := 523.25, 783.99
	if to == config.ModeBrute {
		first, second = second, first
	}
	sm.add(beep.Seq(
		beep.Take(sampleRate.N(blipLength), NewClickGenerator(sampleRate, first)),
		beep.Take(sampleRate.N(blipLength), NewClickGenerator(sampleRate, second)),
	))
}

// Pending returns the number of sounds still in the mixer
func (sm *SoundManager) Pending() int {
	speaker.Lock()
	defer speaker.Unlock()
	return sm.mixer.Len()
}

// Attach plays cues for frame and mode events published on bus. Cancel the
// returned subscriptions to detach.
func (sm *SoundManager) Attach(bus *event.Bus) []*event.Subscription {
	frames := bus.Subscribe(event.FrameCompleted, func(e event.Event) {
		if fe, ok := e.(*event.FrameEvent); ok {
			sm.PlayContact(fe.Contacts)
		}
	})
	modes := bus.Subscribe(event.ModeChanged, func(e event.Event) {
		if me, ok := e.(*event.ModeEvent); ok {
			sm.PlayModeSwitch(me.To)
		}
	})
	return []*event.Subscription{frames, modes}
}
