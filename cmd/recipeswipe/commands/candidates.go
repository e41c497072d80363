package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// CandidatesAction prints the image candidates found on a page.
func CandidatesAction(ctx context.Context, cmd *cli.Command) error {
	pageURL := cmd.Args().First()
	if pageURL == "" {
		return errors.New("page URL is required")
	}

	application, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	urls, err := application.Candidates.Candidates(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("find candidates: %w", err)
	}
	out := cmd.Root().Writer
	for _, u := range urls {
		fmt.Fprintln(out, u)
	}
	return nil
}
