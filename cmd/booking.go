package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"demobook/models"

	"github.com/spf13/cobra"
)

func newResumeCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <booking-id>",
		Short: "Run the pipeline for a booking now, resuming after its last completed stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingCommand(cmd, state, args[0], func(ctx context.Context, c *container, id string) (models.BookingOutcome, error) {
				return c.Service.Fulfill(ctx, id)
			})
		},
	}
}

func newAbandonCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <booking-id>",
		Short: "Mark a partially fulfilled booking as Failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingCommand(cmd, state, args[0], func(ctx context.Context, c *container, id string) (models.BookingOutcome, error) {
				return c.Service.Abandon(ctx, id)
			})
		},
	}
}

func runBookingCommand(cmd *cobra.Command, state *cliState, id string, op func(context.Context, *container, string) (models.BookingOutcome, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := bootstrap(ctx, state.cfg, state.logger)
	if err != nil {
		return err
	}
	defer c.Close()

	out, err := op(ctx, c, id)
	if out.BookingID != "" {
		if werr := printOutcome(cmd.OutOrStdout(), out); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Name(), id, err)
	}
	return nil
}

func printOutcome(w io.Writer, out models.BookingOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
