package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteAll   bool
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an image (or all images)",
	Long: `Delete an image record together with its stored object.

With --all, every image and object is removed.

Examples:
  visio delete 550e8400-e29b-41d4-a716-446655440000
  visio delete --all --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every image")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !deleteAll && len(args) == 0 {
		return fmt.Errorf("provide an image id or --all")
	}

	svc, err := newImageService(ctx)
	if err != nil {
		return err
	}

	if deleteAll {
		if !deleteForce && !confirm("Delete ALL images and objects?") {
			fmt.Println("Aborted.")
			return nil
		}
		if err := svc.DeleteAll(ctx); err != nil {
			return fmt.Errorf("delete all images: %w", err)
		}
		fmt.Println("All images deleted.")
		return nil
	}

	if err := svc.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

// confirm prompts for a yes/no answer on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
