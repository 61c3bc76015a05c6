// Command minigraph runs a workflow graph once and prints the final run
// snapshot as JSON.
//
// Usage:
//
//	minigraph run [-state JSON] [-max-steps N] [-tool-timeout D] [-log-level L] [-events text|json] <graph.json|graph.hcl>
//	minigraph demo [-code FILE] [-log-level L] [-events text|json]
//
// -events writes every engine event to stderr, one line each.
//
// Graphs may use the code-review tools and http_request.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dshills/minigraph/graph"
	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/graphfile"
	"github.com/dshills/minigraph/graph/tool"
	"github.com/dshills/minigraph/internal/logging"
	"github.com/dshills/minigraph/workflows/codereview"
)

const demoCode = `def foo():
    if x and y:
        return 1
    return 2
`

var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "minigraph: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "run":
		return runGraph(ctx, args[1:], stdout, stderr)
	case "demo":
		return runDemo(ctx, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  minigraph run [-state JSON] [-max-steps N] [-tool-timeout D] [-log-level L] [-events text|json] <graph.json|graph.hcl>
  minigraph demo [-code FILE] [-log-level L] [-events text|json]`)
}

func runGraph(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stateJSON := fs.String("state", "{}", "initial state as a JSON object")
	maxSteps := fs.Int("max-steps", graph.DefaultMaxSteps, "step ceiling for the run")
	toolTimeout := fs.Duration("tool-timeout", 0, "per-tool timeout (0 disables)")
	logLevel := fs.String("log-level", "warn", "debug, info, warn or error")
	events := fs.String("events", "", "print engine events to stderr as text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("run needs exactly one graph file")
	}

	def, err := graphfile.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	var initial map[string]interface{}
	if err := json.Unmarshal([]byte(*stateJSON), &initial); err != nil {
		return fmt.Errorf("parse -state: %w", err)
	}

	return execute(ctx, def, initial, stdout, stderr, *logLevel, *events,
		graph.WithMaxSteps(*maxSteps),
		graph.WithToolTimeout(*toolTimeout),
	)
}

func runDemo(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	codeFile := fs.String("code", "", "source file to review (default: a built-in sample)")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	events := fs.String("events", "", "print engine events to stderr as text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	code := demoCode
	if *codeFile != "" {
		data, err := os.ReadFile(*codeFile)
		if err != nil {
			return err
		}
		code = string(data)
	}

	return execute(ctx, codereview.Definition(), map[string]interface{}{
		codereview.KeyCode: code,
	}, stdout, stderr, *logLevel, *events)
}

func execute(ctx context.Context, def graph.Definition, initial map[string]interface{}, stdout, stderr io.Writer, logLevel, events string, opts ...graph.Option) error {
	logger := logging.New(logLevel, "text", stderr)

	emitters := emit.Multi{emit.NewSlogEmitter(logger)}
	switch events {
	case "":
	case "text", "json":
		emitters = append(emitters, emit.NewLogEmitter(stderr, events == "json"))
	default:
		return fmt.Errorf("-events must be text or json, got %q", events)
	}

	tools := tool.NewRegistry(tool.NewHTTPTool(nil))
	if err := codereview.Register(tools); err != nil {
		return err
	}

	opts = append(opts, graph.WithEmitter(emitters))
	engine, err := graph.New(tools, opts...)
	if err != nil {
		return err
	}
	graphID, err := engine.CreateGraph(def)
	if err != nil {
		return err
	}

	start := time.Now()
	runID, err := engine.ExecuteRun(ctx, graphID, initial)
	if err != nil {
		return err
	}
	snap, err := engine.GetRun(runID)
	if err != nil {
		return err
	}
	logger.Info("run finished", "run_id", runID, "status", snap.Status, "steps", snap.StepCount, "elapsed", time.Since(start))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if snap.Status == graph.StatusFailed {
		return fmt.Errorf("%w: %s", errRunFailed, snap.Error)
	}
	return nil
}
