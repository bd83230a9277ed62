// Command pdfbridge drives a document engine through the pdfbridge boundary
// layer.
//
//	pdfbridge info   [flags] file.pdf
//	pdfbridge render [flags] file.pdf
//	pdfbridge text   [flags] file.pdf
//	pdfbridge search [flags] query file.pdf
//	pdfbridge save   [flags] file.pdf
//	pdfbridge js     [flags] script.js [file.pdf]
//
// Every command accepts -engine (lite, or pdfium when built with the pdfium
// tag), -password and -v.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/jpl-au/pdfbridge"
	"github.com/jpl-au/pdfbridge/engine"
	"github.com/jpl-au/pdfbridge/engine/lite"
)

var errUsage = errors.New("usage")

// engines maps -engine names to constructors. Build-tagged files add to it.
var engines = map[string]func() engine.Engine{
	"lite": func() engine.Engine { return lite.New(lite.Options{}) },
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"info", "[flags] file.pdf", runInfo},
	{"render", "[flags] file.pdf", runRender},
	{"text", "[flags] file.pdf", runText},
	{"search", "[flags] query file.pdf", runSearch},
	{"save", "[flags] file.pdf", runSave},
	{"js", "[flags] script.js [file.pdf]", runJS},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "pdfbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == args[0] })
	if i < 0 {
		fmt.Fprintf(stderr, "pdfbridge: unknown command %q\n", args[0])
		usage(stderr)
		return errUsage
	}
	cmd := commands[i]

	e := &env{stdout: stdout, stderr: stderr}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfbridge %s %s\n", cmd.name, cmd.usage)
		fs.PrintDefaults()
	}
	e.flags = fs
	fs.StringVar(&e.engine, "engine", "lite", "document engine")
	fs.StringVar(&e.password, "password", "", "password for encrypted documents")
	fs.BoolVar(&e.verbose, "v", false, "debug logging")
	return cmd.run(ctx, e, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pdfbridge <command> [flags] ...")
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-7s %s\n", c.name, c.usage)
	}
}

// env carries the flags every command shares and the streams it writes to.
type env struct {
	flags    *flag.FlagSet
	engine   string
	password string
	verbose  bool
	stdout   io.Writer
	stderr   io.Writer
}

// parse parses args and checks the positional argument count is within
// [lo, hi].
func (e *env) parse(args []string, lo, hi int) error {
	if err := e.flags.Parse(args); err != nil {
		return err
	}
	if n := e.flags.NArg(); n < lo || n > hi {
		e.flags.Usage()
		return errUsage
	}
	return nil
}

func (e *env) logger() *slog.Logger {
	level := slog.LevelWarn
	if e.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))
}

func (e *env) newEngine() (engine.Engine, error) {
	mk, ok := engines[e.engine]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", e.engine)
	}
	return mk(), nil
}

func (e *env) library() (*pdfbridge.Library, error) {
	eng, err := e.newEngine()
	if err != nil {
		return nil, err
	}
	return pdfbridge.New(eng, pdfbridge.Config{Logger: e.logger()})
}

// open loads path into a new library. Closing the library closes the
// document.
func (e *env) open(path string) (*pdfbridge.Library, *pdfbridge.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	lib, err := e.library()
	if err != nil {
		return nil, nil, err
	}
	doc, err := lib.LoadDocument(data, e.password)
	if err != nil {
		lib.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, doc, nil
}
