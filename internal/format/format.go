// Package format reformats the project sources with black.
package format

import (
	"context"
	"strconv"

	"pycicd/internal/logging"
	"pycicd/internal/paths"
	"pycicd/internal/tactile"
)

// FailureHeader tags a black failure.
const FailureHeader = "Formatting failed."

// DefaultLineLength is used when lineLength is not positive.
const DefaultLineLength = 110

// ReformatWithBlack runs `black . --line-length N` in root.
func ReformatWithBlack(ctx context.Context, ex tactile.Executor, root string, lineLength int) error {
	if err := paths.ValidatePath(root, "paths.root"); err != nil {
		return err
	}
	if lineLength <= 0 {
		lineLength = DefaultLineLength
	}

	timer := logging.StartTimer(logging.CategoryPipeline, "black")
	defer timer.Stop()

	cmd := tactile.Command{
		Binary:           "black",
		Arguments:        []string{".", "--line-length", strconv.Itoa(lineLength)},
		WorkingDirectory: root,
	}
	_, err := tactile.Run(ctx, ex, cmd, FailureHeader)
	return err
}
