package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arkiv/internal/config"
	"arkiv/internal/locks"
	"arkiv/internal/museum"
	"arkiv/internal/poller"
	"arkiv/internal/sip"
	"arkiv/internal/store"
	"arkiv/internal/syncer"
)

func newSyncCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize catalog state and preservation verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSyncKindCommand(cmdCtx, "objects", "Pull changed objects from the catalog"))
	cmd.AddCommand(newSyncKindCommand(cmdCtx, "attachments", "Refresh attachment metadata digests"))
	cmd.AddCommand(newSyncKindCommand(cmdCtx, "hashes", "Refresh object metadata digests"))
	cmd.AddCommand(newSyncProcessedCommand(cmdCtx))

	return cmd
}

func newSyncKindCommand(cmdCtx *commandContext, kind, short string) *cobra.Command {
	var restart bool

	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				catalog, err := museum.NewHTTPClient(cfg)
				if err != nil {
					return err
				}
				sync := syncer.New(st, catalog, cmdCtx.lockService(st), cfg, cmdCtx.logger(cfg))

				switch kind {
				case "objects":
					err = sync.SyncObjects(ctx, restart)
				case "attachments":
					err = sync.SyncAttachments(ctx, restart)
				case "hashes":
					err = sync.SyncHashes(ctx, restart)
				}
				if errors.Is(err, locks.ErrBusy) {
					fmt.Fprintf(cmd.OutOrStdout(), "Another %s sync is already running\n", kind)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sync %s finished\n", kind)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&restart, "restart", false, "Discard the checkpoint and scan from the beginning")
	return cmd
}

func newSyncProcessedCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "processed-sips",
		Short: "Poll the preservation service for verdicts on submitted packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				preservation, err := sip.NewHTTPPreservation(cfg)
				if err != nil {
					return err
				}
				p := poller.New(st, cmdCtx.taskStore(cfg, st), preservation, cfg, cmdCtx.logger(cfg))
				queued, err := p.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d confirmation(s)\n", queued)
				return nil
			})
		},
	}
}
