package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "hnreader"
	app.Usage = "read Hacker News in the terminal and mail a daily digest"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "config `FILE` (YAML)",
			EnvVar: "HNREADER_CONFIG",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log `LEVEL`",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "browse",
			Usage: "open the interactive reader (default)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "feed, f",
					Value: "top",
					Usage: "initial `FEED` [top|new|best|ask|show|jobs]",
				},
				cli.StringFlag{
					Name:  "mode, m",
					Usage: "page `MODE` [paged|scroll], overrides the config",
				},
			},
			Action: runBrowse,
		},
		{
			Name:  "serve",
			Usage: "run the newsletter HTTP API",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Usage: "listen `ADDR`, overrides the config",
				},
				cli.BoolFlag{
					Name:  "schedule, s",
					Usage: "also send the digest every day at the configured hour",
				},
			},
			Action: runServe,
		},
		{
			Name:  "newsletter",
			Usage: "compose and send the top stories digest",
			Subcommands: []cli.Command{
				{
					Name:  "send",
					Usage: "send one digest now",
					Flags: []cli.Flag{
						cli.BoolFlag{
							Name:  "dry-run, n",
							Usage: "log messages instead of sending them",
						},
					},
					Action: runNewsletterSend,
				},
				{
					Name:  "schedule",
					Usage: "send a digest every day at the configured hour",
					Flags: []cli.Flag{
						cli.BoolFlag{
							Name:  "dry-run, n",
							Usage: "log messages instead of sending them",
						},
					},
					Action: runNewsletterSchedule,
				},
			},
		},
	}
	app.Action = runBrowse

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
