package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive an image record",
	Long: `Move an image record to archived. Archived records keep their
object and labels but are final: no further status changes are allowed.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	rec, err := svc.Archive(ctx, args[0])
	if err != nil {
		return fmt.Errorf("archive image: %w", err)
	}
	fmt.Printf("Archived %s\n", rec.ID)
	return nil
}
