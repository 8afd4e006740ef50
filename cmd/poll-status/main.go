package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taquilla/internal/logger"
	"taquilla/internal/poller"
)

// terminalNavigator prints what a browser client would show
type terminalNavigator struct{}

func (terminalNavigator) ShowNotice(message string) {
	fmt.Println("…", message)
}

func (terminalNavigator) Redirect(view poller.View, message string) {
	fmt.Printf("[%s] %s\n", view, message)
}

func main() {
	var (
		baseURL  string
		intentID string
		user     string
		password string
		cfg      = poller.DefaultConfig()
	)
	flag.StringVar(&baseURL, "url", "http://localhost:8081", "API base URL")
	flag.StringVar(&intentID, "intent", "", "Payment intent id to watch")
	flag.StringVar(&user, "user", os.Getenv("TAQUILLA_USER"), "Basic Auth email")
	flag.StringVar(&password, "password", os.Getenv("TAQUILLA_PASSWORD"), "Basic Auth password")
	flag.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Delay between status requests")
	flag.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "Maximum number of status requests")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 10*time.Second, "Timeout for one status request")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"), "text")

	fetcher := poller.NewHTTPFetcher(baseURL, cfg.RequestTimeout)
	if user != "" {
		fetcher.WithBasicAuth(user, password)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := poller.New(fetcher, terminalNavigator{}, cfg).Run(ctx, intentID)
	if errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	if err != nil {
		logger.Fatal("Polling failed", "error", err)
	}

	if out.State != poller.StateSucceeded {
		os.Exit(1)
	}
}
