package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"arkiv/internal/config"
	"arkiv/internal/store"
	"arkiv/internal/tasks"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workflow health, queue depths, and background activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withStore(func(ctx context.Context, cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()

				health, err := st.Health(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Objects")
				fmt.Fprintln(out, renderTable(out,
					[]string{"TOTAL", "NEW", "PROCESSING", "AWAITING", "PRESERVED", "REJECTED", "FROZEN"},
					[][]string{{
						strconv.Itoa(health.Total),
						strconv.Itoa(health.New),
						strconv.Itoa(health.Processing),
						strconv.Itoa(health.Awaiting),
						strconv.Itoa(health.Preserved),
						strconv.Itoa(health.Rejected),
						strconv.Itoa(health.Frozen),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))

				stats, err := cmdCtx.taskStore(cfg, st).Stats(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(tasks.AllQueues()))
				for _, queue := range tasks.AllQueues() {
					byState := stats[queue]
					rows = append(rows, []string{
						string(queue),
						strconv.Itoa(byState[tasks.StatePending]),
						strconv.Itoa(byState[tasks.StateRunning]),
						strconv.Itoa(byState[tasks.StateDead]),
					})
				}
				fmt.Fprintln(out, "\nTask queues")
				fmt.Fprintln(out, renderTable(out,
					[]string{"QUEUE", "PENDING", "RUNNING", "DEAD"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				))

				beats, err := st.Heartbeats(ctx)
				if err != nil {
					return err
				}
				sources := make([]string, 0, len(beats))
				for source := range beats {
					sources = append(sources, source)
				}
				sort.Strings(sources)
				beatRows := make([][]string, 0, len(sources))
				for _, source := range sources {
					beatRows = append(beatRows, []string{
						source,
						beats[source].UTC().Format(time.RFC3339),
					})
				}
				if len(beatRows) == 0 {
					beatRows = append(beatRows, []string{"(none)", ""})
				}
				fmt.Fprintln(out, "\nBackground activity")
				fmt.Fprintln(out, renderTable(out,
					[]string{"SOURCE", "LAST RUN"},
					beatRows,
					[]columnAlignment{alignLeft, alignLeft},
				))

				value, err := st.GetSetting(ctx, store.SettingDeferredEnqueue, "disabled")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nDeferred enqueue: %s\n", value)
				return nil
			})
		},
	}
}
