package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visio-labs/visio/internal/models"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List image records",
	Long: `List image records, newest first.

Examples:
  visio list
  visio list --limit 10`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max results")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	records, err := svc.List(ctx, listLimit)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	printRecordList(records)
	return nil
}

// printRecordList prints the compact one-line-per-record format shared by
// list and search.
func printRecordList(records []models.ImageRecord) {
	if len(records) == 0 {
		fmt.Println("No images found.")
		return
	}

	fmt.Printf("Images (%d):\n\n", len(records))
	for _, rec := range records {
		fmt.Printf("- %s [%s]\n", rec.ID, rec.Status)
		if verbose {
			fmt.Printf("  Object: %s\n", rec.ObjectPath)
			if len(rec.Labels) > 0 {
				fmt.Printf("  Labels: %s\n", strings.Join(rec.Labels, ", "))
			}
		}
	}
}
