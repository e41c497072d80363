package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"RecipeSwipe/cmd/recipeswipe/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:   "recipeswipe",
		Usage:  "recipe card uploads and swipe feed",
		Writer: os.Stdout,
		Commands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "upload recipe photos or PDFs for OCR",
				ArgsUsage: "FILE...",
				Flags:     commands.CommonFlags(),
				Action:    commands.UploadAction,
			},
			{
				Name:   "jobs",
				Usage:  "list persisted upload jobs",
				Flags:  commands.CommonFlags(),
				Action: commands.JobsAction,
			},
			{
				Name:   "serve",
				Usage:  "serve the upload API, job websocket and swipe feed",
				Flags:  commands.CommonFlags(),
				Action: commands.ServeAction,
			},
			{
				Name:  "swipe",
				Usage: "fill the swipe feed and step through it",
				Flags: append(commands.CommonFlags(),
					&cli.StringSliceFlag{
						Name:  "meal-type",
						Usage: "only show recipes of this meal type (repeatable)",
					},
					&cli.StringFlag{
						Name:  "query",
						Usage: "title substring filter",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "number of swipes",
						Value: 5,
					},
				),
				Action: commands.SwipeAction,
			},
			{
				Name:      "candidates",
				Usage:     "list image candidates found on a web page",
				ArgsUsage: "URL",
				Flags:     commands.CommonFlags(),
				Action:    commands.CandidatesAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
