package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// ServeAction runs the HTTP and websocket server until interrupted.
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	application, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Serve(ctx)
}
