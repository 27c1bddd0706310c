package cli

import (
	"github.com/spf13/cobra"
)

// NewDLQCmd builds the dlq command group: list.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect the dead letter queue",
	}

	cmd.AddCommand(newDLQListCmd(clientFn, outputFn))

	return cmd
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.DLQList(cmd.Context(), limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "RETRY_COUNT", "MAX_RETRIES", "LAST_ERROR", "CREATED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				row := taskRow(t)
				rows[i] = []string{row[0], row[1], row[3], row[4], row[5], row[6]}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 100, "Maximum number of results")

	return cmd
}
