package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/usecase"
)

// SwipeAction fills the feed from the live catalog and advances through it.
func SwipeAction(ctx context.Context, cmd *cli.Command) error {
	application, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	filter := usecase.Filter{
		MealTypes: cmd.StringSlice("meal-type"),
		Query:     cmd.String("query"),
	}
	feed := application.Feed
	if err := feed.Start(ctx, filter); err != nil {
		return err
	}

	out := cmd.Root().Writer
	if p, ok := feed.Pending().Pending(); ok {
		fmt.Fprintf(out, "awaiting image: %s %q (%d candidates)\n", p.Key, p.Recipe.Title, len(p.Candidates))
	}

	queue := feed.Queue()
	count := cmd.Int("count")
	for i := 0; ; i++ {
		printCard(out, "current", queue.Current())
		printCard(out, "next", queue.Next())
		if i >= count || queue.Len() == 0 {
			break
		}
		queue.Advance()
		fmt.Fprintln(out, "--")
	}
	return nil
}

func printCard(w io.Writer, label string, img *domain.Image) {
	if img == nil {
		fmt.Fprintf(w, "%-8s (empty)\n", label)
		return
	}
	fmt.Fprintf(w, "%-8s %s %s\n", label, img.Key, img.File)
}
