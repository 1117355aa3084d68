package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <label>",
	Short: "Search images by recognition label",
	Long: `Search images whose recognition labels contain the given label.

Examples:
  visio search cat
  visio search "no tags"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	records, err := svc.Search(ctx, args[0])
	if err != nil {
		return fmt.Errorf("search images: %w", err)
	}
	printRecordList(records)
	return nil
}
