// Command relay runs and talks to a relay message server.
//
// Usage:
//
//	relay serve --config relay.yaml --policy policy.yaml --watch-policy
//	relay send --server http://localhost:8080 --from Captain --to Agent-2 "status report"
//	relay bulk --policy policy.yaml messages.yaml
//	relay validate-policy policy.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/tailored-agentic-units/relay/observability"
)

type CLI struct {
	Version        VersionCmd        `cmd:"" help:"Show version information."`
	Serve          ServeCmd          `cmd:"" help:"Run the relay server."`
	Send           SendCmd           `cmd:"" help:"Send one message through a relay server."`
	Bulk           BulkCmd           `cmd:"" help:"Coordinate a batch of messages and print the report."`
	ValidatePolicy ValidatePolicyCmd `cmd:"" name:"validate-policy" help:"Validate a policy document."`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" env:"RELAY_LOG_LEVEL"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("relay version %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("relay"),
		kong.Description("Policy-gated message relay between agents."),
		kong.UsageOnError(),
	)

	logger := newLogger(cli.LogLevel)
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
