package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"RecipeSwipe/internal/app"
	"RecipeSwipe/internal/config"
	"RecipeSwipe/internal/logging"
)

// CommonFlags are accepted by every command.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "dotenv file path",
			Value: ".env",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML config file (defaults to $RECIPESWIPE_CONFIG)",
		},
	}
}

// newApplication loads configuration from the command flags and wires the
// application.
func newApplication(ctx context.Context, cmd *cli.Command) (*app.Application, error) {
	cfg, err := config.Load(cmd.String("env"), cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	application, err := app.New(ctx, cfg, logging.New(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("init application: %w", err)
	}
	return application, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
