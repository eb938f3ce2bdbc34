// Package main is the entry point for artisand, the live-preview
// daemon: it watches a document on disk, renders it through the preview
// pipeline, and serves the result over HTTP with live refresh.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/config"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/convert"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/preview"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/server"
	"github.com/webbwr/AsciiDoctorArtisan-sub007/internal/watch"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to settings.toml")
		docPath     = flag.String("doc", "", "document to preview (overrides settings)")
		listen      = flag.String("listen", "", "listen address (overrides settings)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("artisand %s (%s)\n", version, commit)
		return 0
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	if *docPath != "" {
		settings.Document.Path = *docPath
	}
	if *listen != "" {
		settings.Server.Listen = *listen
	}
	if settings.Document.Path == "" {
		fmt.Fprintln(os.Stderr, "Error: no document given (use -doc or settings.toml)")
		return 1
	}

	log := newLogger(settings)

	pipe, err := preview.New(convert.NewMarkdown(), settings.PipelineConfig(), log)
	if err != nil {
		log.Error("pipeline init failed", "error", err)
		return 1
	}
	defer pipe.Close()

	src, err := watch.New(settings.Document.Path, 0, log)
	if err != nil {
		log.Error("watch init failed", "document", settings.Document.Path, "error", err)
		return 1
	}
	defer src.Close()

	srv := server.New(log, server.WithStats(pipe.Stats))

	// Snapshots into the pipeline, results into the server.
	go func() {
		for snap := range src.Snapshots() {
			pipe.OnChange(snap)
		}
	}()
	go func() {
		for res := range pipe.Results() {
			srv.Update(res)
		}
	}()

	httpServer := &http.Server{
		Addr:              settings.Server.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		log.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	log.Info("starting artisand",
		"version", version,
		"document", settings.Document.Path,
		"listen", settings.Server.Listen,
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		return 1
	}
	return 0
}

// newLogger builds the process logger from the logging settings.
func newLogger(settings config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.LogLevel()}
	var handler slog.Handler
	if settings.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
