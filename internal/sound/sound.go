// Package sound lets programs beep.
//
// The engine never produces audio itself. A Tone is handed to a Player on
// the UI thread; the IDE's player forwards it to the browser, which
// synthesises it with WebAudio. The headless CLI records tones instead.
package sound

import (
	"errors"
	"sync"
	"time"
)

const (
	MinFrequency = 20.0
	MaxFrequency = 20000.0
	MaxDuration  = 10 * time.Second
)

var ErrBadTone = errors.New("sound: tone out of range")

// Tone is a sine beep.
type Tone struct {
	Frequency float64       `json:"frequency"`
	Duration  time.Duration `json:"-"`
	Millis    int64         `json:"ms"`
}

// NewTone validates and builds a tone.
func NewTone(freq float64, d time.Duration) (Tone, error) {
	if freq < MinFrequency || freq > MaxFrequency || d <= 0 || d > MaxDuration {
		return Tone{}, ErrBadTone
	}
	return Tone{Frequency: freq, Duration: d, Millis: d.Milliseconds()}, nil
}

// Player plays tones. Called on the UI thread.
type Player interface {
	Play(t Tone)
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(Tone)

func (f PlayerFunc) Play(t Tone) { f(t) }

// Recorder remembers every tone it is asked to play.
type Recorder struct {
	mu    sync.Mutex
	tones []Tone
}

func (r *Recorder) Play(t Tone) {
	r.mu.Lock()
	r.tones = append(r.tones, t)
	r.mu.Unlock()
}

func (r *Recorder) Tones() []Tone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tone(nil), r.tones...)
}
