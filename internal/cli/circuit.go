package cli

import (
	"github.com/spf13/cobra"
)

// NewCircuitCmd builds the circuit command group: reset-all, open-all.
// Both broadcast a control event over the shared event channel so every
// worker process applies the change to its own in-process breaker (§4.12).
func NewCircuitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Broadcast circuit breaker overrides to every worker",
	}

	cmd.AddCommand(
		newCircuitResetAllCmd(clientFn, outputFn),
		newCircuitOpenAllCmd(clientFn, outputFn),
	)

	return cmd
}

func newCircuitResetAllCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-all",
		Short: "Force every worker's breaker CLOSED",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.ResetAllCircuits(cmd.Context()); err != nil {
				return err
			}

			out.Success("Broadcast circuit_reset_all")
			return nil
		},
	}
}

func newCircuitOpenAllCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "open-all",
		Short: "Force every worker's breaker OPEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.OpenAllCircuits(cmd.Context()); err != nil {
				return err
			}

			out.Success("Broadcast circuit_open_all")
			return nil
		},
	}
}
