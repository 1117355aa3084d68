package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visio-labs/visio/internal/models"
)

var getShowURL bool

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show an image record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getShowURL, "url", false, "include a signed content URL")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	rec, err := svc.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	printRecord(*rec)

	if getShowURL {
		url, err := svc.ContentURL(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("sign content url: %w", err)
		}
		fmt.Printf("  URL:     %s\n", url)
	}
	return nil
}

// printRecord prints one record in the detail format shared by get and
// upload --wait.
func printRecord(rec models.ImageRecord) {
	labels := "-"
	if len(rec.Labels) > 0 {
		labels = strings.Join(rec.Labels, ", ")
	}
	fmt.Printf("Image %s\n", rec.ID)
	fmt.Printf("  Object:  %s (%s bytes)\n", rec.ObjectPath, rec.ObjectSize)
	fmt.Printf("  Status:  %s\n", rec.Status)
	fmt.Printf("  Labels:  %s\n", labels)
	fmt.Printf("  Added:   %s\n", rec.TimeAdded.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated: %s\n", rec.TimeUpdated.Format("2006-01-02 15:04:05"))
}
