// Package console connects a learner program's standard streams to the
// IDE's console view.
//
// HOW OUTPUT GETS TO THE SCREEN:
//
//	print("hi") ─► os.Stdout (a pipe while a program runs)
//	            ─► pump goroutine reads the pipe
//	            ─► gateway.RunOnUI(sink.Write)
//	            ─► Buffer on the UI thread ─► observers (websocket, terminal)
//
// Input goes the other way: a line typed in the console is fed into the
// stdin pipe, and input() picks it up.
package console

import (
	"strings"
	"sync"
)

// Stream tags a chunk of console text so views can colour it.
type Stream string

const (
	Stdout     Stream = "stdout"
	Stderr     Stream = "stderr"
	Diagnostic Stream = "diagnostic" // compiler messages, unhandled faults
	Notice     Stream = "notice"     // neutral engine messages ("Program stopped.")
	Echo       Stream = "echo"       // lines the learner typed
)

// Sink receives console text. Implementations are driven from the UI
// thread.
type Sink interface {
	Write(stream Stream, text string)
}

// inputAttacher is implemented by sinks that can forward typed lines to
// the active program.
type inputAttacher interface {
	AttachInput(feed func(line string) error)
	DetachInput()
}

// Chunk is one write, as seen by observers.
type Chunk struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
}

// Buffer is the console view's model: bounded scrollback plus observers.
// It is written from the UI thread, but also read by HTTP handlers and
// written directly when there is no UI, so it carries its own lock.
type Buffer struct {
	mu        sync.Mutex
	max       int
	chunks    []Chunk
	size      int
	observers []func(Chunk)
	feed      func(string) error
}

var _ Sink = (*Buffer)(nil)

// NewBuffer keeps roughly maxBytes of scrollback (0 means 64 KiB).
func NewBuffer(maxBytes int) *Buffer {
	if maxBytes <= 0 {
		maxBytes = 64 << 10
	}
	return &Buffer{max: maxBytes}
}

// Observe registers fn for every chunk written from now on.
func (b *Buffer) Observe(fn func(Chunk)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

func (b *Buffer) Write(stream Stream, text string) {
	if text == "" {
		return
	}
	c := Chunk{Stream: stream, Text: text}

	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.size += len(text)
	for b.size > b.max && len(b.chunks) > 1 {
		b.size -= len(b.chunks[0].Text)
		b.chunks = b.chunks[1:]
	}
	observers := b.observers
	b.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
}

// Chunks returns a copy of the scrollback.
func (b *Buffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Text is the scrollback as plain text.
func (b *Buffer) Text() string {
	var sb strings.Builder
	for _, c := range b.Chunks() {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Clear empties the scrollback.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.chunks = nil
	b.size = 0
	b.mu.Unlock()
}

func (b *Buffer) AttachInput(feed func(string) error) {
	b.mu.Lock()
	b.feed = feed
	b.mu.Unlock()
}

func (b *Buffer) DetachInput() {
	b.mu.Lock()
	b.feed = nil
	b.mu.Unlock()
}

// Submit echoes a typed line and hands it to the running program. It
// reports false when no program is listening.
func (b *Buffer) Submit(line string) bool {
	b.mu.Lock()
	feed := b.feed
	b.mu.Unlock()

	b.Write(Echo, line+"\n")
	if feed == nil {
		return false
	}
	return feed(line) == nil
}
