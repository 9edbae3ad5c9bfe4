package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arkiv/internal/config"
	"arkiv/internal/store"
)

func newFreezeCommand(cmdCtx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "freeze <object-id>...",
		Short: "Exclude objects from automatic preservation",
		Long: "Mark objects frozen and cancel their queued work. Frozen objects " +
			"are skipped by enqueue runs and refuse stage transitions until " +
			"unfrozen.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return errors.New("--reason is required")
			}
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				frozen, err := cmdCtx.adminPipeline(cfg, st).Freeze(ctx, args, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Froze %d object(s)\n", frozen)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the objects are being frozen")
	return cmd
}

func newUnfreezeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unfreeze <object-id>...",
		Short: "Return frozen objects to automatic preservation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				unfrozen, err := cmdCtx.adminPipeline(cfg, st).Unfreeze(ctx, args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unfroze %d object(s)\n", unfrozen)
				return nil
			})
		},
	}
}
