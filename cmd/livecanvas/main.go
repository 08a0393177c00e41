// Command livecanvas runs learner programs from the terminal.
//
//	livecanvas run sketch.star --svg out.svg --timeout 10s
//	livecanvas check sketch.star
//	livecanvas serve --config livecanvas.toml
//
// run drives the same session the browser IDE uses, minus the browser:
// console output goes to the terminal, lines typed on stdin reach input(),
// and Ctrl+C is the Stop button. The final canvas can be written as SVG.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/config"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/logging"
	"github.com/sakif/livecanvas/internal/server"
	"github.com/sakif/livecanvas/internal/session"
)

var (
	errColor    = color.New(color.FgRed)
	noticeColor = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen, color.Bold)
	faintColor  = color.New(color.Faint)
)

// terminal is the real stdio, captured before a run swaps os.Stdin,
// os.Stdout and os.Stderr for the console pipes. Anything the CLI prints
// during a run must go here, or it lands back in the program's console.
type terminal struct {
	in   io.Reader
	out  io.Writer
	errw io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		// First Ctrl+C stops the program cooperatively; restoring the
		// default handler lets a second one kill a program that never
		// checks.
		<-ctx.Done()
		stop()
	}()

	term := terminal{in: os.Stdin, out: os.Stdout, errw: os.Stderr}
	if err := newApp(term).Run(ctx, os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			errColor.Fprintln(term.errw, msg)
		}
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(term terminal) *cli.Command {
	return &cli.Command{
		Name:      "livecanvas",
		Usage:     "run, check and serve canvas programs",
		Reader:    term.in,
		Writer:    term.out,
		ErrWriter: term.errw,
		// main decides the exit code; cli must not call os.Exit itself.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a program headless",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "svg", Usage: "write the final canvas to this file"},
					&cli.DurationFlag{Name: "timeout", Usage: "stop the program after this long (0: never)"},
				},
				Action: term.runAction,
			},
			{
				Name:      "check",
				Usage:     "compile a program and report problems",
				ArgsUsage: "FILE",
				Action:    term.checkAction,
			},
			{
				Name:   "serve",
				Usage:  "start the web IDE",
				Action: term.serveAction,
			},
		},
	}
}

// setup loads config and builds a logger. The CLI defaults to tint on
// stderr so program output on stdout stays clean.
func setup(cmd *cli.Command, format string, w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if l := cmd.String("log-level"); l != "" {
		level = l
	}
	if format == "" {
		format = cfg.Log.Format
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format}, w)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func readSource(cmd *cli.Command) (string, error) {
	path := cmd.Args().First()
	if path == "" {
		return "", cli.Exit("missing FILE", 2)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t terminal) runAction(ctx context.Context, cmd *cli.Command) error {
	src, err := readSource(cmd)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(cmd, "tint", t.errw)
	if err != nil {
		return err
	}

	sess := session.New(session.Options{
		Canvas:     canvas.Size{Width: cfg.Engine.CanvasWidth, Height: cfg.Engine.CanvasHeight},
		Input:      cfg.Engine.Input(),
		Scrollback: cfg.Engine.ConsoleScrollback,
	}, logger)
	sess.OnConsole(t.printChunk)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go sess.Run(loopCtx)
	<-sess.Loop().Ready()
	go t.feedStdin(sess, logger)

	if d := cmd.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	exec := executor.NewService(cfg.Engine.Executor(), sess.Diagnostics(), logger)
	report, err := exec.Execute(ctx, src, sess.NewExecutionContext())
	if err != nil {
		return err
	}
	// Output the program wrote just before it ended is still queued on
	// the loop; drain it before the status line.
	if err := sess.Loop().Invoke(func() {}); err != nil {
		logger.Debug("console flush skipped", slog.String("error", err.Error()))
	}
	faintColor.Fprintf(t.errw, "%s in %s\n", report.Status, report.Duration.Round(time.Millisecond))

	if path := cmd.String("svg"); path != "" {
		if err := writeSVG(sess, path); err != nil {
			return err
		}
	}

	switch report.Status {
	case executor.StatusCompileFailed:
		return cli.Exit("", 2)
	case executor.StatusFaulted:
		return cli.Exit("", 1)
	}
	return nil
}

func (t terminal) printChunk(c console.Chunk) {
	switch c.Stream {
	case console.Stderr, console.Diagnostic:
		errColor.Fprint(t.errw, c.Text)
	case console.Notice:
		noticeColor.Fprint(t.errw, c.Text)
	case console.Echo:
		// the terminal already echoed what was typed
	default:
		fmt.Fprint(t.out, c.Text)
	}
}

// feedStdin turns terminal lines into console input events.
func (t terminal) feedStdin(sess *session.Session, logger *slog.Logger) {
	sc := bufio.NewScanner(t.in)
	for sc.Scan() {
		if err := sess.HandleEvent(session.Event{Type: session.EventStdin, Text: sc.Text()}); err != nil {
			logger.Debug("dropping stdin line", slog.String("error", err.Error()))
			return
		}
	}
}

func writeSVG(sess *session.Session, path string) error {
	snap, err := sess.Snapshot()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := canvas.WriteSVG(f, snap); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func (t terminal) checkAction(ctx context.Context, cmd *cli.Command) error {
	src, err := readSource(cmd)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(cmd, "tint", t.errw)
	if err != nil {
		return err
	}

	exec := executor.NewService(cfg.Engine.Executor(), nil, logger)
	res, err := exec.Compile(src)
	if err != nil {
		return err
	}
	if res.Success {
		okColor.Fprintln(t.out, "no problems found")
		return nil
	}
	for _, d := range res.Diagnostics {
		errColor.Fprintln(t.out, d.String())
	}
	return cli.Exit(fmt.Sprintf("%d problem(s)", len(res.Diagnostics)), 2)
}

func (t terminal) serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd, "", t.out)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	return srv.Start()
}
