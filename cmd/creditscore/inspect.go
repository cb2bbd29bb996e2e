package main

import (
	"context"
	"fmt"

	"credit-scorer/internal/cfg"
	"credit-scorer/internal/features"
	"credit-scorer/internal/ml"
	"credit-scorer/internal/scoring"

	"github.com/urfave/cli/v3"
)

var inspectCmd = &cli.Command{
	Name:  "inspect",
	Usage: "Score, explain and compare one client without the HTTP API",
	Flags: []cli.Flag{
		clientIDFlag,
	},
	Action: func(_ context.Context, cmd *cli.Command) error {
		c, err := cfg.Load()
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		snapshot, err := scoring.Load(c)
		if err != nil {
			return err
		}
		svc, err := scoring.NewService(snapshot, nil)
		if err != nil {
			return err
		}

		report, err := inspect(svc, cmd.Int(clientIDFlag.Name))
		if err != nil {
			return err
		}
		return printJSON(cmd.Root().Writer, report)
	},
}

type inspection struct {
	ClientID   int64           `json:"client_id"`
	Prediction ml.Prediction   `json:"score"`
	Explain    features.Vector `json:"explain"`
	Compare    features.Vector `json:"compare_client_group_class_1"`
}

func inspect(svc *scoring.Service, id int64) (inspection, error) {
	pred, err := svc.Score(id)
	if err != nil {
		return inspection{}, err
	}
	top, err := svc.ExplainTop(id)
	if err != nil {
		return inspection{}, err
	}
	delta, err := svc.CompareCohort(id)
	if err != nil {
		return inspection{}, err
	}
	return inspection{ClientID: id, Prediction: pred, Explain: top, Compare: delta}, nil
}
