// Command mcp-probe connects to configured backends once, reports their
// status or listings as JSON lines, and shuts them down again. It is handy for
// checking a servers file before pointing the dashboard at it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/invoke"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

// Options are the mcp-probe command-line flags.
type Options struct {
	Config      string        `short:"c" long:"config" description:"YAML file listing servers" required:"true"`
	Op          string        `short:"o" long:"op" description:"operation to run" default:"status" choice:"status" choice:"tools" choice:"prompts"`
	Servers     []string      `short:"s" long:"server" description:"server id to probe (repeatable, default all)"`
	Timeout     time.Duration `short:"t" long:"timeout" description:"overall deadline" default:"1m"`
	Parallelism int           `short:"p" long:"parallel" description:"servers probed at once" default:"4"`
	Verbose     bool          `short:"v" long:"verbose" description:"log connection activity to stderr"`
}

type probeResult struct {
	Server   string          `json:"server"`
	Envelope invoke.Envelope `json:"envelope"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ok, err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-probe:", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

// run reports whether every probed server succeeded.
func run(ctx context.Context, args []string, out io.Writer) (bool, error) {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return true, nil
		}
		return false, err
	}
	op, _ := invoke.ParseOp(options.Op)

	logger := zap.NewNop()
	if options.Verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return false, err
		}
	}

	registry, err := mcpmgr.LoadRegistry(options.Config)
	if err != nil {
		return false, err
	}
	manager := mcpmgr.NewManager(registry, &mcpmgr.ManagerOptions{ClientName: "mcp-probe", Logger: logger})
	ids := options.Servers
	if len(ids) == 0 {
		ids = manager.Registry().IDs()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Close(closeCtx)
	}()
	invoker := invoke.NewInvoker(manager, &invoke.Options{Logger: logger})

	ctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	results := make([]probeResult, len(ids))
	var g errgroup.Group
	if options.Parallelism > 0 {
		g.SetLimit(options.Parallelism)
	}
	for i, id := range ids {
		g.Go(func() error {
			results[i] = probeResult{Server: id, Envelope: invoker.Do(ctx, invoke.NewRequest(op, id))}
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	allOK := true
	for _, res := range results {
		allOK = allOK && res.Envelope.Success
		if err := enc.Encode(res); err != nil {
			return false, err
		}
	}
	return allOK, nil
}
