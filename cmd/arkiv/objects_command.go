package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"arkiv/internal/config"
	"arkiv/internal/store"
)

func newObjectsCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Inspect tracked objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newObjectsListCommand(cmdCtx))
	cmd.AddCommand(newObjectsShowCommand(cmdCtx))
	return cmd
}

func newObjectsListCommand(cmdCtx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				var objects []*store.Object
				var err error
				if statusFilter != "" {
					status, ok := store.ParseStatus(statusFilter)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFilter)
					}
					objects, err = st.ObjectsByStatus(ctx, status)
				} else {
					objects, err = st.ListObjects(ctx)
				}
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(objects))
				for _, object := range objects {
					rows = append(rows, []string{
						object.ID,
						object.Title,
						string(object.Status),
						yesNo(object.Frozen),
						formatTimePtr(object.ModifiedDate),
						formatTimePtr(object.LastPreserved),
						object.LastError,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "TITLE", "STATUS", "FROZEN", "MODIFIED", "PRESERVED", "ERROR"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show objects in this status")
	return cmd
}

func newObjectsShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <object-id>",
		Short: "Show one object and its latest submission package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				object, err := st.GetObject(ctx, args[0])
				if err != nil {
					return err
				}
				if object == nil {
					return fmt.Errorf("object %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:             %s\n", object.ID)
				fmt.Fprintf(out, "Title:          %s\n", object.Title)
				fmt.Fprintf(out, "Status:         %s\n", object.Status)
				fmt.Fprintf(out, "Frozen:         %s\n", yesNo(object.Frozen))
				if object.Frozen {
					fmt.Fprintf(out, "Freeze reason:  %s (%s)\n", object.FreezeReason, object.FreezeSource)
				}
				fmt.Fprintf(out, "Modified:       %s\n", formatTimePtr(object.ModifiedDate))
				fmt.Fprintf(out, "Last preserved: %s\n", formatTimePtr(object.LastPreserved))
				if object.SubmissionID != "" {
					fmt.Fprintf(out, "Submission:     %s\n", object.SubmissionID)
				}
				if object.LastError != "" {
					fmt.Fprintf(out, "Last error:     %s (retries: %d)\n", object.LastError, object.RetryCount)
				}

				pkg, err := st.LatestPackage(ctx, object.ID)
				if err != nil {
					return err
				}
				if pkg != nil {
					fmt.Fprintf(out, "Latest package: %s (sip %s)\n", pkg.SIPFilename, pkg.SIPID)
				}
				return nil
			})
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}
