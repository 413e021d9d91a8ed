package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mvolek/estates-harvest/internal/harvest"
)

func main() {
	app := &cli.App{
		Name:  "estates-harvest",
		Usage: "fetch the sreality estate list and load it into a sink",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the full fetch/normalize/load pipeline",
				Action: harvest.RunAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to YAML config file",
						Value: "config.yaml",
					},
					&cli.StringFlag{
						Name:  "sink",
						Usage: "output sink: csv, sqlite or postgres",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "output path for the csv sink",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "database path for the sqlite sink",
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "page size for the page walk",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "maximum concurrent page fetches",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "retries per page after the first failed attempt",
					},
					&cli.IntFlag{
						Name:  "region",
						Usage: "locality_region_id search filter",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "log errors only",
					},
				},
			},
			{
				Name:   "count",
				Usage:  "probe the declared result size and required page count",
				Action: harvest.CountAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to YAML config file",
						Value: "config.yaml",
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "page size used for the page count",
					},
					&cli.IntFlag{
						Name:  "region",
						Usage: "locality_region_id search filter",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "log errors only",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
