package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// JobsAction prints the persisted job list.
func JobsAction(ctx context.Context, cmd *cli.Command) error {
	application, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	jobs, err := application.PersistedJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	out := cmd.Root().Writer
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no jobs")
		return nil
	}
	for _, job := range jobs {
		printProgress(out, job)
	}
	return nil
}
