package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"DealPilot/internal/app"
	"DealPilot/internal/config"
	"DealPilot/internal/task"
)

var runFlags struct {
	configPath string
	params     []string
	paramsJSON string
	logLevel   string
}

var runCmd = &cobra.Command{
	Use:   "run <persona>",
	Short: "Run one persona job in-process and print its progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "c", envOr("DEALPILOT_CONFIG", ""), "config file (.yaml/.json)")
	f.StringArrayVarP(&runFlags.params, "param", "p", nil, "job parameter as key=value (repeatable)")
	f.StringVar(&runFlags.paramsJSON, "params-json", "", "job parameters as a JSON object")
	f.StringVar(&runFlags.logLevel, "log-level", "warn", "structured log level written to stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	params, err := parseParams(runFlags.params, runFlags.paramsJSON)
	if err != nil {
		return err
	}
	cfg, err := config.Load(runFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Level = runFlags.logLevel
	cfg.Logging.Outputs = []string{"stderr"}
	if err := app.InitLogger(cfg.Logging); err != nil {
		return err
	}

	ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	engine, err := app.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.OutOrStdout()
	result, runErr := app.RunHeadless(ctx, engine, strings.ToLower(args[0]), params, func(ev task.Event) {
		if ev.Type == task.EventLog {
			fmt.Fprintln(out, ev.Message)
		}
	})
	if result == nil {
		return runErr
	}
	if err := printJSON(out, map[string]any{
		"id":     result.ID,
		"status": result.Status,
		"result": result.Result,
	}); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if result.Status == task.StatusFailed {
		return fmt.Errorf("job failed [%s]: %s", result.ErrorCode, result.LastError)
	}
	return nil
}
