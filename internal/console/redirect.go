package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sakif/livecanvas/internal/dispatch"
	"github.com/sakif/livecanvas/internal/stop"
)

var (
	// ErrNotActive is returned when the redirect is used outside a run.
	ErrNotActive = errors.New("console: redirection is not active")

	errUsed = errors.New("console: redirection already used")
)

// Redirect swaps the process's standard streams for pipes for the length
// of one run.
//
// Activate saves os.Stdin, os.Stdout and os.Stderr. Restore puts exactly
// those values back, closes the pipes and waits until everything written
// has reached the sink. A Redirect is single-use.
type Redirect struct {
	gateway *dispatch.Gateway
	sink    Sink

	mu       sync.Mutex
	state    int // 0 new, 1 active, 2 restored
	savedIn  *os.File
	savedOut *os.File
	savedErr *os.File

	inR, inW   *os.File
	outR, outW *os.File
	errR, errW *os.File

	lines   chan string
	closing chan struct{}
	pumps   sync.WaitGroup
}

func NewRedirect(g *dispatch.Gateway, sink Sink) *Redirect {
	return &Redirect{gateway: g, sink: sink}
}

// Activate installs the pipes.
func (r *Redirect) Activate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != 0 {
		return errUsed
	}

	var err error
	if r.inR, r.inW, err = os.Pipe(); err != nil {
		return fmt.Errorf("console: creating stdin pipe: %w", err)
	}
	if r.outR, r.outW, err = os.Pipe(); err != nil {
		closeAll(r.inR, r.inW)
		return fmt.Errorf("console: creating stdout pipe: %w", err)
	}
	if r.errR, r.errW, err = os.Pipe(); err != nil {
		closeAll(r.inR, r.inW, r.outR, r.outW)
		return fmt.Errorf("console: creating stderr pipe: %w", err)
	}

	r.savedIn, r.savedOut, r.savedErr = os.Stdin, os.Stdout, os.Stderr
	os.Stdin, os.Stdout, os.Stderr = r.inR, r.outW, r.errW

	r.lines = make(chan string, 16)
	r.closing = make(chan struct{})
	r.pumps.Add(3)
	go r.pump(r.outR, Stdout)
	go r.pump(r.errR, Stderr)
	go r.scanInput()

	if a, ok := r.sink.(inputAttacher); ok {
		r.gateway.RunOnUI(func() { a.AttachInput(r.Feed) })
	}

	r.state = 1
	return nil
}

// Restore puts the saved streams back. Calling it again, or on a
// redirect that was never activated, does nothing.
func (r *Redirect) Restore() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != 1 {
		r.state = 2
		return nil
	}
	r.state = 2

	os.Stdin, os.Stdout, os.Stderr = r.savedIn, r.savedOut, r.savedErr

	if a, ok := r.sink.(inputAttacher); ok {
		r.gateway.RunOnUI(a.DetachInput)
	}

	close(r.closing)
	// Closing the write ends lets the pumps hit EOF once they have
	// forwarded everything already written.
	err := errors.Join(r.outW.Close(), r.errW.Close(), r.inW.Close())
	r.pumps.Wait()
	closeAll(r.outR, r.errR, r.inR)

	if err != nil {
		return fmt.Errorf("console: closing pipes: %w", err)
	}
	return nil
}

// Active reports whether the pipes are installed.
func (r *Redirect) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == 1
}

// Stdout is where print writes while the run is active.
func (r *Redirect) Stdout() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		r.mu.Lock()
		w, active := r.outW, r.state == 1
		r.mu.Unlock()
		if !active {
			return 0, ErrNotActive
		}
		return w.Write(p)
	})
}

// Feed types line into the program's stdin.
func (r *Redirect) Feed(line string) error {
	r.mu.Lock()
	w, active := r.inW, r.state == 1
	r.mu.Unlock()
	if !active {
		return ErrNotActive
	}
	_, err := io.WriteString(w, line+"\n")
	return err
}

// ReadLine waits for a line of input. It gives up with stop.ErrStopped if
// tok is signalled first, and with io.EOF once the redirect is restored.
func (r *Redirect) ReadLine(tok *stop.Token) (string, error) {
	r.mu.Lock()
	lines, active := r.lines, r.state == 1
	r.mu.Unlock()
	if !active {
		return "", ErrNotActive
	}

	var done <-chan struct{}
	if tok != nil {
		done = tok.Done()
	}
	select {
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-done:
		return "", stop.ErrStopped
	}
}

func (r *Redirect) pump(src *os.File, stream Stream) {
	defer r.pumps.Done()
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			r.gateway.RunOnUI(func() { r.sink.Write(stream, text) })
		}
		if err != nil {
			return
		}
	}
}

func (r *Redirect) scanInput() {
	defer r.pumps.Done()
	defer close(r.lines)
	sc := bufio.NewScanner(r.inR)
	for sc.Scan() {
		select {
		case r.lines <- sc.Text():
		case <-r.closing:
			return
		}
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
