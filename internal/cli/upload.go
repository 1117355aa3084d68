package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/visio-labs/visio/internal/models"
)

var uploadWait bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image for recognition",
	Long: `Upload an image file. The image is stored, a pending record is
created, and the recognition worker is notified.

With --wait, the command stays attached and shows the record's progress
until recognition finishes.

Examples:
  visio upload cat.jpg
  visio upload --wait holiday/beach.png`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "wait for recognition to finish")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	rec, err := svc.Create(ctx, f, models.FileMetadata{
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
	})
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}

	fmt.Printf("Uploaded %s\n", path)
	fmt.Printf("  ID:     %s\n", rec.ID)
	fmt.Printf("  Object: %s\n", rec.ObjectPath)
	fmt.Printf("  Status: %s\n", rec.Status)

	if !uploadWait {
		fmt.Printf("\nUse 'visio get %s' to check recognition progress.\n", rec.ID)
		return nil
	}

	final, err := RunRecognitionProgress(dbClient, rec.ID)
	if err != nil {
		return err
	}
	if final != nil {
		printRecord(*final)
	}
	return nil
}
