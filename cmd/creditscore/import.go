package main

import (
	"context"
	"fmt"

	"credit-scorer/internal/features"
	"credit-scorer/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	csvPathFlag = &cli.StringFlag{
		Name:     "csv",
		Usage:    "Path to the CSV feature table",
		Required: true,
	}

	dbPathFlag = &cli.StringFlag{
		Name:     "db",
		Usage:    "Path to the BoltDB snapshot to write",
		Required: true,
	}

	importCmd = &cli.Command{
		Name:  "import",
		Usage: "Convert a CSV feature table into a BoltDB snapshot",
		Flags: []cli.Flag{
			csvPathFlag,
			dbPathFlag,
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			info, err := importTable(cmd.String(csvPathFlag.Name), cmd.String(dbPathFlag.Name))
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, info)
		},
	}
)

func importTable(csvPath, dbPath string) (storage.SnapshotInfo, error) {
	table, err := features.LoadCSV(csvPath)
	if err != nil {
		return storage.SnapshotInfo{}, err
	}

	store, err := storage.New(dbPath)
	if err != nil {
		return storage.SnapshotInfo{}, err
	}
	defer store.Close()

	if err := store.SaveTable(table); err != nil {
		return storage.SnapshotInfo{}, fmt.Errorf("save snapshot: %w", err)
	}

	info, err := store.Info()
	if err != nil {
		return storage.SnapshotInfo{}, err
	}
	log.Info().
		Str("csv", csvPath).
		Str("db", store.Path()).
		Int("clients", info.Clients).
		Msg("Feature table imported")
	return info, nil
}
