package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"arkiv/internal/config"
	"arkiv/internal/enqueue"
	"arkiv/internal/store"
)

func newEnqueueCommand(cmdCtx *commandContext) *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "enqueue [count]",
		Short: "Queue eligible objects for preservation",
		Long: "Queue download tasks for objects whose delay window has elapsed. " +
			"Without a count every eligible object is queued. With --ids only the " +
			"named objects are considered; the eligibility rules still apply.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := 0
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 0 {
					return fmt.Errorf("count must be a non-negative integer, got %q", args[0])
				}
				limit = parsed
			}
			if len(ids) > 0 && limit > 0 {
				return fmt.Errorf("count and --ids are mutually exclusive")
			}

			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				engine := enqueue.New(st, cmdCtx.taskStore(cfg, st), cmdCtx.lockService(st), cfg, cmdCtx.logger(cfg))

				var queued int
				var err error
				if len(ids) > 0 {
					queued, err = engine.RunIDs(ctx, ids)
				} else {
					queued, err = engine.Run(ctx, limit)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d object(s) for preservation\n", queued)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Queue these object ids only")
	return cmd
}

func newDeferredEnqueueCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "deferred-enqueue <enable|disable|status>",
		Short:     "Control the daemon's background enqueue loop",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"enable", "disable", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				switch args[0] {
				case "enable":
					if err := st.SetSetting(ctx, store.SettingDeferredEnqueue, "enabled"); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Deferred enqueue enabled")
				case "disable":
					if err := st.SetSetting(ctx, store.SettingDeferredEnqueue, "disabled"); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Deferred enqueue disabled")
				case "status":
					value, err := st.GetSetting(ctx, store.SettingDeferredEnqueue, "disabled")
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deferred enqueue is %s\n", value)
				default:
					return fmt.Errorf("unknown argument %q", args[0])
				}
				return nil
			})
		},
	}
	return cmd
}

func newReenqueueCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reenqueue <object-id>",
		Short: "Restart a rejected or failed object from the download stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				if err := cmdCtx.adminPipeline(cfg, st).Reenqueue(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Object %s queued for a fresh preservation attempt\n", args[0])
				return nil
			})
		},
	}
}
