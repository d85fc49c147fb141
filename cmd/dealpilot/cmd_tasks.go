package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"DealPilot/sdk/go/dealpilot"
)

var submitFlags struct {
	id         string
	params     []string
	paramsJSON string
	wait       bool
}

var waitFlags struct {
	follow   bool
	interval time.Duration
}

var listFlags struct {
	statuses []string
	persona  string
	query    string
	limit    int
	offset   int
	stats    bool
}

var submitCmd = &cobra.Command{
	Use:   "submit <persona>",
	Short: "Submit a job to dealpilotd",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var getCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var waitCmd = &cobra.Command{
	Use:   "wait <task-id>",
	Short: "Block until a job finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWait,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs or show job counts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.id, "id", "", "idempotency id; resubmitting returns the existing job")
	f.StringArrayVarP(&submitFlags.params, "param", "p", nil, "job parameter as key=value (repeatable)")
	f.StringVar(&submitFlags.paramsJSON, "params-json", "", "job parameters as a JSON object")
	f.BoolVarP(&submitFlags.wait, "wait", "w", false, "follow progress until the job finishes")

	for _, c := range []*cobra.Command{waitCmd, submitCmd} {
		c.Flags().BoolVar(&waitFlags.follow, "follow", true, "stream progress lines while waiting")
		c.Flags().DurationVar(&waitFlags.interval, "interval", 2*time.Second, "poll interval when not following")
	}

	lf := listCmd.Flags()
	lf.StringSliceVar(&listFlags.statuses, "status", nil, "filter by status (pending,running,success,failed)")
	lf.StringVar(&listFlags.persona, "persona", "", "filter by persona")
	lf.StringVarP(&listFlags.query, "query", "q", "", "substring match on id, params and errors")
	lf.IntVar(&listFlags.limit, "limit", 20, "maximum rows")
	lf.IntVar(&listFlags.offset, "offset", 0, "rows to skip")
	lf.BoolVar(&listFlags.stats, "stats", false, "print counts instead of rows")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	params, err := parseParams(submitFlags.params, submitFlags.paramsJSON)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	submitted, err := client.Submit(ctx, dealpilot.TaskSubmission{ID: submitFlags.id, Persona: args[0], Params: params})
	if err != nil {
		return err
	}
	if !submitFlags.wait {
		return printJSON(cmd.OutOrStdout(), submitted)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s\n", submitted.ID)
	return waitFor(cmd, client, submitted.ID)
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	found, err := client.Get(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), found)
}

func runWait(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return waitFor(cmd, client, args[0])
}

func waitFor(cmd *cobra.Command, client *dealpilot.Client, id string) error {
	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	out := cmd.OutOrStdout()
	if waitFlags.follow {
		current, err := client.Get(ctx, id)
		if err != nil {
			return err
		}
		for _, entry := range current.Logs {
			fmt.Fprintf(out, "[%s] %s\n", entry.At.Local().Format("15:04:05"), entry.Message)
		}
		if !current.Terminal() {
			err := client.Stream(ctx, id, func(ev dealpilot.Event) error {
				if ev.Type == "log" {
					fmt.Fprintln(out, ev.Message)
				}
				return nil
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "event stream ended: %v; polling instead\n", err)
			}
		}
	}

	final, err := client.Wait(ctx, id, waitFlags.interval)
	if err != nil {
		return err
	}
	if err := printJSON(out, final); err != nil {
		return err
	}
	if final.Status == dealpilot.StatusFailed {
		return fmt.Errorf("job %s failed [%s]: %s", final.ID, final.ErrorCode, final.LastError)
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	filter := dealpilot.ListFilter{
		Statuses: listFlags.statuses,
		Persona:  listFlags.persona,
		Query:    listFlags.query,
		Limit:    listFlags.limit,
		Offset:   listFlags.offset,
	}
	if listFlags.stats {
		stats, err := client.Stats(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	}
	tasks, err := client.List(ctx, filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range tasks {
		fmt.Fprintf(out, "%-36s  %-11s  %-8s  %s\n", t.ID, t.Persona, t.Status, time.Unix(t.UpdatedAt, 0).Format(time.RFC3339))
	}
	return nil
}
