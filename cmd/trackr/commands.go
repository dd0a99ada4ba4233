package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/trackr"
	"github.com/loykin/trackr/internal/sink"
	"github.com/loykin/trackr/pkg/client"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg := trackr.DefaultConfig()
	if configPath != "" {
		loaded, err := trackr.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	}

	slog.SetDefault(cfg.Log.NewSlogger())

	if cfg.Server.Metrics {
		if err := trackr.RegisterMetricsDefault(); err != nil {
			fmt.Printf("Warning: failed to register metrics: %v\n", err)
		}
	}

	pl, err := trackr.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	if err := pl.Start(); err != nil {
		return err
	}

	server, err := trackr.NewServerFromConfig(cfg, pl)
	if err != nil {
		_ = pl.Shutdown(flags.ShutdownTimeout)
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("Starting trackr collector on %s%s\n", cfg.Server.Listen, cfg.Server.BasePath)

	if flags.NonBlocking {
		_ = server.Close()
		return pl.Shutdown(flags.ShutdownTimeout)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	_ = server.Close()
	return pl.Shutdown(flags.ShutdownTimeout)
}

func runStatsCommand(f *StatsFlags) error {
	// Always use API - default to local collector if not specified
	apiUrl := f.APIUrl
	if apiUrl == "" {
		apiUrl = "http://127.0.0.1:9313/api"
	}

	c := client.New(client.Config{BaseURL: apiUrl, APIKey: f.APIKey, Timeout: f.APITimeout})
	ctx := context.Background()
	if !c.IsReachable(ctx) {
		return fmt.Errorf("collector not reachable at %s - start it first with 'trackr serve'", apiUrl)
	}

	st, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func runCatCommand(f *CatFlags, args []string) error {
	path := f.Path
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("record file required. Use 'trackr cat <file.jsonl>' or --file")
	}
	return catFile(os.Stdout, os.Stderr, f, path)
}

func catFile(out, errOut io.Writer, f *CatFlags, path string) error {
	records, skipped, err := sink.ReadFile(path)
	if err != nil {
		return err
	}
	if f.ErrorsOnly {
		failed := records[:0:0]
		for _, rec := range records {
			if !rec.Result.OK() {
				failed = append(failed, rec)
			}
		}
		records = failed
	}
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[len(records)-f.Limit:]
	}
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintln(out, string(b))
	}
	if skipped > 0 {
		_, _ = fmt.Fprintf(errOut, "skipped %d unparseable line(s)\n", skipped)
	}
	return nil
}
