package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/tablewire/internal/probe"
	"github.com/okian/tablewire/pkg/logger"
)

const (
	defaultDuration = 30 * time.Second
	defaultTimeout  = 10 * time.Second
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the gateway")
		provider = flag.String("provider", "evolution", "Provider to subscribe against")
		games    = flag.String("games", "", "Comma separated game ids to subscribe to")
		duration = flag.Duration("duration", defaultDuration, "How long to collect updates")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request and ack timeout")
		verbose  = flag.Bool("verbose", false, "Log every received frame")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Named("ws-probe")

	var ids []string
	for id := range strings.SplitSeq(*games, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		os.Stderr.WriteString("at least one game id is required (-games)\n")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := probe.Run(ctx, &probe.Config{
		BaseURL:  *baseURL,
		Provider: *provider,
		Games:    ids,
		Duration: *duration,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}, log)
	if report != nil {
		report.WriteSummary(os.Stdout)
	}
	if err != nil {
		log.Error(ctx, "probe failed", logger.Error(err))
		os.Exit(1)
	}
}
