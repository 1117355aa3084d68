package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/visio-labs/visio/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long:  `Show notification queue depth and record counts by status.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	q := queue.NewSurrealQueue(dbClient, cfg.LockDuration, cfg.MaxDeliveryCount)
	ready, locked, dead, err := q.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}

	fmt.Println("Notification queue:")
	fmt.Printf("  ready:  %d\n", ready)
	fmt.Printf("  locked: %d\n", locked)
	fmt.Printf("  dead:   %d\n", dead)

	records, err := dbClient.ListImages(ctx, 1000)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[string(rec.Status)]++
	}

	fmt.Println("\nImage records:")
	for _, status := range []string{"pending", "processing", "completed", "failed", "archived"} {
		if counts[status] > 0 {
			fmt.Printf("  %-10s %d\n", status+":", counts[status])
		}
	}
	if len(records) == 0 {
		fmt.Println("  none")
	}
	return nil
}
