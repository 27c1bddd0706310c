package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/ingress"
)

// NewTaskCmd builds the task command group: submit, get, list, retry,
// delete.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskGetCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
		newTaskRetryCmd(clientFn, outputFn),
		newTaskDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var taskID string
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "submit TASK_TYPE PAYLOAD",
		Short: "Submit a new task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var retries *int
			if cmd.Flags().Changed("max-retries") {
				retries = &maxRetries
			}

			id, err := client.Submit(cmd.Context(), taskID, args[0], args[1], retries)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task submitted: %s", id))
			out.JSON(map[string]string{"task_id": id})
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Task ID (generated if omitted)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Max retry attempts")

	return cmd
}

func newTaskGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TYPE", "STATE", "RETRY_COUNT", "MAX_RETRIES", "LAST_ERROR", "CREATED"},
				[][]string{taskRow(task)},
				task,
			)
			return nil
		},
	}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string
	var taskType string
	var page, pageSize int
	var sortDesc bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			filter := ingress.ListFilter{
				TaskType: taskType,
				Page:     page,
				PageSize: pageSize,
				SortDesc: sortDesc,
			}
			if state != "" {
				s := domain.State(state)
				filter.State = &s
			}

			result, err := client.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATE", "RETRY_COUNT", "MAX_RETRIES", "LAST_ERROR", "CREATED"}
			rows := make([][]string, len(result.Tasks))
			for i, t := range result.Tasks {
				rows[i] = taskRow(t)
			}

			out.Print(headers, rows, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, ACTIVE, COMPLETED, FAILED, SCHEDULED, DLQ)")
	cmd.Flags().StringVar(&taskType, "type", "", "Filter by task_type")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Results per page")
	cmd.Flags().BoolVar(&sortDesc, "desc", false, "Sort newest first")

	return cmd
}

func newTaskRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry TASK_ID",
		Short: "Retry a failed or dead-lettered task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.Retry(cmd.Context(), args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task requeued: %s", args[0]))
			return nil
		},
	}
}

func newTaskDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task deleted: %s", args[0]))
			return nil
		},
	}
}

func taskRow(t *domain.Task) []string {
	return []string{
		t.ID,
		t.Type,
		string(t.State),
		strconv.Itoa(t.RetryCount),
		strconv.Itoa(t.MaxRetries),
		t.LastError,
		t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
