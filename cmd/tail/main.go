// Command tail prints the notifications of one user as they arrive.
package main

import (
	"chat-notify/client"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	URL   string `envconfig:"NOTIFY_URL" default:"http://localhost:6687"`
	Token string `envconfig:"NOTIFY_TOKEN" required:"true"`
	// NOTIFY_COLOURS enables colorized output
	Colours  bool   `envconfig:"NOTIFY_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
}

var kindStyles = map[string]color.Style{
	"NewChat":        color.New(color.FgCyan, color.OpBold),
	"NewMessage":     color.New(color.FgGreen),
	"MembersAdded":   color.New(color.FgYellow),
	"MembersRemoved": color.New(color.FgRed),
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tail error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	if !config.Colours {
		color.Disable()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(config.URL, config.Token, nil)
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second

	for {
		err := c.Stream(ctx, func() {
			b.Reset()
			log.Info("Connected", "url", config.URL)
		}, printEvent)
		if ctx.Err() != nil {
			return exitOK, nil
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return exitRuntime, err
		}
		if !errors.Is(err, context.Canceled) {
			log.Warn("Stream lost, reconnecting", "error", err, "in", delay)
		}
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-time.After(delay):
		}
	}
}

func printEvent(e client.Event) error {
	style, ok := kindStyles[e.Name]
	if !ok {
		style = color.New(color.FgWhite)
	}
	fmt.Printf("%s %s %s\n",
		color.Gray.Render(time.Now().Format("15:04:05")),
		style.Render(fmt.Sprintf("%-14s", e.Name)),
		string(e.Data))
	return nil
}
