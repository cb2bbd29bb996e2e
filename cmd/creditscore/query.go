package main

import (
	"context"
	"fmt"
	"strings"

	"credit-scorer/internal/cfg"
	"credit-scorer/internal/client"

	"github.com/urfave/cli/v3"
)

var (
	apiURLFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "Base URL of the scoring API (defaults to API_URL)",
		Sources: cli.EnvVars("API_URL"),
	}

	queryIDFlag = &cli.IntFlag{
		Name:  "id",
		Usage: "Client identifier (required for per-client queries)",
	}

	queryCmd = &cli.Command{
		Name:      "query",
		Usage:     "Query a running scoring API",
		ArgsUsage: "<" + strings.Join(queryKinds, "|") + ">",
		Flags: []cli.Flag{
			apiURLFlag,
			queryIDFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := cfg.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			base := c.APIURL
			if u := cmd.String(apiURLFlag.Name); u != "" {
				base = u
			}

			var id *int64
			if cmd.IsSet(queryIDFlag.Name) {
				v := cmd.Int(queryIDFlag.Name)
				id = &v
			}

			result, err := runQuery(ctx, client.New(base, c.ClientTimeout), cmd.Args().First(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, result)
		},
	}
)

var queryKinds = []string{"clients", "info", "predict", "data", "explain", "explain-full", "compare", "mean", "profile"}

func runQuery(ctx context.Context, c *client.Client, kind string, id *int64) (any, error) {
	switch kind {
	case "clients":
		return c.ClientIDs(ctx)
	case "info":
		return c.Info(ctx)
	case "mean":
		return c.CohortMean(ctx)
	}

	perClient := map[string]func(context.Context, int64) (any, error){
		"predict":      func(ctx context.Context, id int64) (any, error) { return c.Predict(ctx, id) },
		"data":         func(ctx context.Context, id int64) (any, error) { return c.ClientData(ctx, id) },
		"explain":      func(ctx context.Context, id int64) (any, error) { return c.Explain(ctx, id) },
		"explain-full": func(ctx context.Context, id int64) (any, error) { return c.ExplainFull(ctx, id) },
		"compare":      func(ctx context.Context, id int64) (any, error) { return c.Compare(ctx, id) },
		"profile":      func(ctx context.Context, id int64) (any, error) { return c.ClassProfile(ctx, id) },
	}
	fn, ok := perClient[kind]
	if !ok {
		return nil, fmt.Errorf("unknown query %q, expected one of: %s", kind, strings.Join(queryKinds, ", "))
	}
	if id == nil {
		return nil, fmt.Errorf("query %s requires --id", kind)
	}
	return fn(ctx, *id)
}
