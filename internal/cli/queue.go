package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewQueueCmd builds the queue command group: status, requeue-orphaned.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair queue state",
	}

	cmd.AddCommand(
		newQueueStatusCmd(clientFn, outputFn),
		newQueueRequeueOrphanedCmd(clientFn, outputFn),
	)

	return cmd
}

func newQueueStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depths and the adaptive retry ratio (state counts too with --json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"PRIMARY", "RETRY", "SCHEDULED", "DLQ", "RETRY_RATIO"}
			rows := [][]string{{
				strconv.FormatInt(status.Depths.Primary, 10),
				strconv.FormatInt(status.Depths.Retry, 10),
				strconv.FormatInt(status.Depths.Scheduled, 10),
				strconv.FormatInt(status.Depths.DLQ, 10),
				strconv.FormatFloat(status.AdaptiveRetryRatio, 'f', 3, 64),
			}}

			out.Print(headers, rows, status)
			return nil
		},
	}
}

func newQueueRequeueOrphanedCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-orphaned",
		Short: "Requeue PENDING tasks missing from both queue lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			n, err := client.RequeueOrphaned(cmd.Context())
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Requeued %d orphaned task(s)", n))
			return nil
		},
	}
}
