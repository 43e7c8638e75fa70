package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/logging"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var beadID string
	var beadType string
	var intent string
	var description string
	var priority int

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a bead to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[0])
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := beadstore.Open(cfg, logging.NewNop())
			if err != nil {
				return err
			}

			id := strings.TrimSpace(beadID)
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := store.Load(cmd.Context(), id); err == nil {
				return fmt.Errorf("bead %q already exists", id)
			}

			b := &bead.Bead{
				ID:          id,
				Type:        strings.TrimSpace(beadType),
				Title:       title,
				Intent:      strings.TrimSpace(intent),
				Description: strings.TrimSpace(description),
				Status:      bead.StatusPending,
				Priority:    priority,
			}
			if b.Type == "" {
				b.Type = bead.DefaultType
			}
			if b.Priority < 0 {
				b.Priority = bead.PriorityLowest
			}
			if err := store.Save(cmd.Context(), b); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added bead %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&beadID, "id", "", "Bead identifier (generated when omitted)")
	cmd.Flags().StringVar(&beadType, "type", bead.DefaultType, "Bead type")
	cmd.Flags().StringVar(&intent, "intent", "", "Short statement of what done looks like")
	cmd.Flags().StringVar(&description, "description", "", "Longer free-form description")
	cmd.Flags().IntVar(&priority, "priority", bead.PriorityLowest, "Dispatch priority (lower runs first)")
	return cmd
}
