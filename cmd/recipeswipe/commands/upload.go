package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"RecipeSwipe/internal/domain"
)

// UploadAction queues the given files as one job and waits for the result.
func UploadAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}
	files, err := readUploadFiles(paths)
	if err != nil {
		return err
	}

	application, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer application.Close()

	out := cmd.Root().Writer
	unsubscribe := application.Uploads.Subscribe(func(job domain.UploadJob) {
		printProgress(out, job)
	})

	id := application.Uploads.QueueUpload(files, nil)
	job, err := application.Uploads.Wait(ctx, id)
	unsubscribe()
	if err != nil {
		return fmt.Errorf("wait for job %s: %w", id, err)
	}
	job.Files = nil
	if err := printJSON(out, job); err != nil {
		return err
	}
	if job.Status == domain.JobError {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}

func readUploadFiles(paths []string) ([]domain.UploadFile, error) {
	files := make([]domain.UploadFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files = append(files, domain.UploadFile{
			Data: base64.StdEncoding.EncodeToString(data),
			Type: domain.DetectFileType(path, data),
			URI:  abs,
		})
	}
	return files, nil
}

func printProgress(w io.Writer, job domain.UploadJob) {
	fmt.Fprintf(w, "%s %s %d/%d", job.ID, job.Status, job.Progress.Completed+job.Progress.Failed, job.Progress.Total)
	if job.Progress.Failed > 0 {
		fmt.Fprintf(w, " (%d failed)", job.Progress.Failed)
	}
	fmt.Fprintln(w)
}
