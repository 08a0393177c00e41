// Package input holds the pointer and keyboard state that learner programs
// poll.
//
// POLLING, NOT EVENTS:
// A learner writes
//
//	while True:
//	    if mouse.click()[0] == "left":
//	        ...
//
// so the program never receives events. It asks "what is the state right
// now?" The UI thread writes into the Store as events arrive; the
// execution thread reads copies out of it. A click is a short "pulse":
// CurrentClick reports it for ClickPulse and then goes back to NoClick,
// while LastClick keeps it until the next click. Pulses that happen
// between two polls can be lost. That is the contract, not a bug.
//
// LOCKING:
// One RWMutex guards everything. Every reader returns a copy (positions
// are fresh pointers), so nothing the program holds can change under it.
package input

import (
	"math"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Point is a position in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Button identifies a pointer button, or that the pointer left the canvas.
type Button int

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	ButtonOutOfArea
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonOutOfArea:
		return "out"
	default:
		return "none"
	}
}

// ParseButton maps the browser's names back to a Button.
func ParseButton(s string) Button {
	switch s {
	case "left":
		return ButtonLeft
	case "right":
		return ButtonRight
	case "middle":
		return ButtonMiddle
	case "out":
		return ButtonOutOfArea
	default:
		return ButtonNone
	}
}

// ClickStatus is the kind of the most recent click.
type ClickStatus int

const (
	NoClick ClickStatus = iota
	OneLeftClick
	DoubleLeftClick
	OneRightClick
	OneMiddleClick
)

func (c ClickStatus) String() string {
	switch c {
	case OneLeftClick:
		return "left"
	case DoubleLeftClick:
		return "double"
	case OneRightClick:
		return "right"
	case OneMiddleClick:
		return "middle"
	default:
		return "none"
	}
}

// CursorInfo is a snapshot of the pointer. Position is nil when the
// pointer is outside the canvas (Pressed is then ButtonOutOfArea) or has
// never been seen.
type CursorInfo struct {
	Position *Point
	Pressed  Button
}

// ClickInfo is a snapshot of a click.
type ClickInfo struct {
	Status   ClickStatus
	Position *Point
}

// Scheduler runs fn on the UI thread after d. dispatch.Loop implements it.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func() bool)
}

// Config tunes pulse lengths and double-click detection.
type Config struct {
	ClickPulse          time.Duration
	KeyPulse            time.Duration
	DoubleClickWindow   time.Duration
	DoubleClickDistance float64
}

// DefaultConfig returns the timings the IDE ships with.
func DefaultConfig() Config {
	return Config{
		ClickPulse:          150 * time.Millisecond,
		KeyPulse:            150 * time.Millisecond,
		DoubleClickWindow:   400 * time.Millisecond,
		DoubleClickDistance: 4,
	}
}

type timerFunc func(d time.Duration, fn func()) func() bool

func (f timerFunc) AfterFunc(d time.Duration, fn func()) func() bool { return f(d, fn) }

// Store is the shared input snapshot.
type Store struct {
	cfg   Config
	sched Scheduler
	now   func() time.Time

	mu sync.RWMutex

	cursor     position
	pressed    Button
	outside    bool
	lastActual position

	click     ClickInfo
	lastClick ClickInfo
	clickGen  uint64
	clickStop func() bool

	lastLeftAt  time.Time
	lastLeftPos Point

	key     string
	lastKey string
	keyGen  uint64
	keyStop func() bool
	down    mapset.Set[string]
}

type position struct {
	p   Point
	set bool
}

func (p position) ptr() *Point {
	if !p.set {
		return nil
	}
	cp := p.p
	return &cp
}

// New creates a store. A nil scheduler falls back to plain timers, which
// is what the headless CLI uses.
func New(cfg Config, sched Scheduler) *Store {
	if sched == nil {
		sched = timerFunc(func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		})
	}
	return &Store{
		cfg:   cfg,
		sched: sched,
		now:   time.Now,
		down:  mapset.NewThreadUnsafeSet[string](),
	}
}

// Reset clears all state and cancels pending pulse resets.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clickStop != nil {
		s.clickStop()
	}
	if s.keyStop != nil {
		s.keyStop()
	}
	s.cursor, s.lastActual = position{}, position{}
	s.pressed, s.outside = ButtonNone, false
	s.click, s.lastClick = ClickInfo{}, ClickInfo{}
	s.clickGen++
	s.keyGen++
	s.clickStop, s.keyStop = nil, nil
	s.lastLeftAt = time.Time{}
	s.key, s.lastKey = "", ""
	s.down.Clear()
}

// ---- UI-side writers ----

// PointerMoved records a pointer sample. inside reports whether p lies on
// the canvas.
func (s *Store) PointerMoved(p Point, inside bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !inside {
		s.outside = true
		s.cursor = position{}
		return
	}
	s.outside = false
	s.cursor = position{p: p, set: true}
	s.lastActual = s.cursor
}

// ButtonDown records a pressed button at p.
func (s *Store) ButtonDown(b Button, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed = b
	s.outside = false
	s.cursor = position{p: p, set: true}
	s.lastActual = s.cursor
}

// ButtonUp records a released button.
func (s *Store) ButtonUp(b Button, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pressed == b {
		s.pressed = ButtonNone
	}
	s.cursor = position{p: p, set: true}
	s.lastActual = s.cursor
}

// Clicked records a completed click and starts its pulse.
func (s *Store) Clicked(b Button, p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := NoClick
	switch b {
	case ButtonLeft:
		now := s.now()
		if !s.lastLeftAt.IsZero() &&
			now.Sub(s.lastLeftAt) <= s.cfg.DoubleClickWindow &&
			distance(p, s.lastLeftPos) <= s.cfg.DoubleClickDistance {
			status = DoubleLeftClick
			s.lastLeftAt = time.Time{}
		} else {
			status = OneLeftClick
			s.lastLeftAt = now
			s.lastLeftPos = p
		}
	case ButtonRight:
		status = OneRightClick
	case ButtonMiddle:
		status = OneMiddleClick
	default:
		return
	}

	pos := p
	s.click = ClickInfo{Status: status, Position: &pos}
	s.lastClick = s.click

	// A newer pulse supersedes the pending reset of the older one. The
	// generation check covers a reset that already fired and is queued.
	if s.clickStop != nil {
		s.clickStop()
	}
	s.clickGen++
	gen := s.clickGen
	s.clickStop = s.sched.AfterFunc(s.cfg.ClickPulse, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.clickGen == gen {
			s.click = ClickInfo{}
		}
	})
}

// KeyDown records a key press and starts its pulse.
func (s *Store) KeyDown(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.down.Add(key)
	s.key = key
	s.lastKey = key

	if s.keyStop != nil {
		s.keyStop()
	}
	s.keyGen++
	gen := s.keyGen
	s.keyStop = s.sched.AfterFunc(s.cfg.KeyPulse, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.keyGen == gen {
			s.key = ""
		}
	})
}

// KeyUp records a key release.
func (s *Store) KeyUp(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down.Remove(key)
}

// ---- readers (any goroutine) ----

// CurrentCursor is the pointer right now.
func (s *Store) CurrentCursor() CursorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outside {
		return CursorInfo{Pressed: ButtonOutOfArea}
	}
	return CursorInfo{Position: s.cursor.ptr(), Pressed: s.pressed}
}

// LastActualCursor is the last sample taken while the pointer was on the
// canvas.
func (s *Store) LastActualCursor() CursorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CursorInfo{Position: s.lastActual.ptr(), Pressed: s.pressed}
}

// CurrentClick is the click pulse, NoClick once it has expired.
func (s *Store) CurrentClick() ClickInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyClick(s.click)
}

// LastClick is the most recent click, kept until the next one.
func (s *Store) LastClick() ClickInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyClick(s.lastClick)
}

// CurrentKey is the key pulse; ok is false once it has expired.
func (s *Store) CurrentKey() (key string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.key != ""
}

// LastKey is the most recent key press.
func (s *Store) LastKey() (key string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKey, s.lastKey != ""
}

// IsKeyDown reports whether key is currently held.
func (s *Store) IsKeyDown(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.down.Contains(key)
}

// KeysDown lists the held keys in no particular order.
func (s *Store) KeysDown() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.down.ToSlice()
}

func copyClick(c ClickInfo) ClickInfo {
	if c.Position != nil {
		p := *c.Position
		c.Position = &p
	}
	return c
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
