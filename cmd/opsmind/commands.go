package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	gopsagent "github.com/google/gops/agent"
	"github.com/poiesic/opsmind"
	"github.com/poiesic/opsmind/agent"
	"github.com/poiesic/opsmind/config"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/stream"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := config.Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if key := c.String("api-key"); key != "" {
		cfg.AI.APIKey = key
	}
	if provider := c.String("provider"); provider != "" {
		cfg.AI.Provider = provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSystem(c *cli.Context, opts ...opsmind.Option) (*opsmind.System, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	sys, err := opsmind.Open(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open opsmind: %w", err)
	}
	return sys, nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("gops") {
		if err := gopsagent.Listen(gopsagent.Options{}); err != nil {
			return fmt.Errorf("failed to start gops agent: %w", err)
		}
		defer gopsagent.Close()
	}

	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	cfg := sys.Config()
	addr := cfg.Server.Addr
	if a := c.String("addr"); a != "" {
		addr = a
	}
	srv, err := sys.NewServer()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if c.Bool("watch") || cfg.Watcher.Enabled {
		w, err := sys.NewWatcher()
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error { return sys.Queue().Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	return g.Wait()
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	sys, err := openSystem(c, opsmind.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}
	defer sys.Close()

	for _, path := range c.Args().Slice() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if c.Bool("queue") {
			id, err := sys.Queue().Enqueue(c.Context, core.JobPayload{FilePath: abs})
			if err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", path, err)
			}
			fmt.Fprintf(c.App.Writer, "%s\tqueued as %s\n", path, id)
			continue
		}
		n, err := sys.Pipeline().Ingest(c.Context, abs)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		fmt.Fprintf(c.App.Writer, "%s\t%d chunks\n", path, n)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	var opts []opsmind.Option
	if c.Bool("verbose") {
		opts = append(opts, opsmind.WithRetrievalMonitor(newWriterMonitor(c.App.ErrWriter)))
	}
	sys, err := openSystem(c, opts...)
	if err != nil {
		return err
	}
	defer sys.Close()

	answer, err := sys.Answer(c.Context, agent.Request{Question: question, UserID: c.String("user")})
	if err != nil {
		return err
	}

	out := c.App.Writer
	sink := stream.SinkFunc(func(_ context.Context, f stream.Frame) error {
		switch f.Type {
		case stream.FrameContent:
			fmt.Fprint(out, f.Data)
		case stream.FrameSources:
			fmt.Fprintln(out)
			if len(f.Sources) > 0 {
				fmt.Fprintln(out, "\nSources:")
			}
			for _, s := range f.Sources {
				fmt.Fprintf(out, "  - %s (%s)\n", s.Title, s.Reference)
			}
		}
		return nil
	})
	if err := stream.Deliver(c.Context, sink, answer); err != nil {
		return err
	}
	if answer.Metadata.FallbackMode {
		slog.Warn("answer produced without the generation model")
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	jobs, err := sys.Queue().List(c.Context, core.JobState(c.String("state")))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tATTEMPTS\tFILE\tERROR")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			job.ID, job.State, job.Attempts, job.MaxAttempts, job.Payload.FilePath, job.LastError)
	}
	return tw.Flush()
}

func countCommand(c *cli.Context) error {
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	n, err := sys.Chunks().Count(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, n)
	return nil
}

func purgeCommand(c *cli.Context) error {
	source := c.String("source")
	if source == "" && !c.Bool("all") {
		return errors.New("either --source or --all is required")
	}
	sys, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	n, err := sys.Purge(c.Context, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d chunks\n", n)
	return nil
}
