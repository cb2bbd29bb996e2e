package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	name    = "creditscore"
	version = "v0.0.1-default"
	commit  = ""

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: trace, debug, info, warn, error",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}

	logFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "Log format: console, json",
		Value:   "console",
		Sources: cli.EnvVars("LOG_FORMAT"),
	}

	clientIDFlag = &cli.IntFlag{
		Name:     "id",
		Usage:    "Client identifier",
		Required: true,
	}
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    name,
		Version: version + " (commit: " + commit + ")",
		Usage:   "Credit default scoring service",
		Flags: []cli.Flag{
			logLevelFlag,
			logFormatFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			importCmd,
			inspectCmd,
			queryCmd,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.String(logLevelFlag.Name), cmd.String(logFormatFlag.Name))
			return ctx, nil
		},
	}
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
