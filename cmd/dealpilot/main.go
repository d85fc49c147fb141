// dealpilot runs persona jobs headless or drives a running dealpilotd.
//
// Usage:
//
//	dealpilot run foodie --param food_item="Margherita Pizza" --param action=order
//	dealpilot submit rider --param pickup=Home --param drop=Office
//	dealpilot get <task-id>
//	dealpilot wait <task-id> [--follow]
//	dealpilot list --status failed --persona foodie
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	addr    string
	envFile string
	timeout string
	token   string
}

var rootCmd = &cobra.Command{
	Use:   "dealpilot",
	Short: "Compare prices across consumer apps and coordinate group orders",
	Long: "DealPilot drives shopping, food, ride, pharmacy, travel and group-order\n" +
		"personas through an automation surface. Run jobs locally with 'run' or\n" +
		"talk to a dealpilotd daemon with submit/get/wait/list.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return loadEnvFile(rootFlags.envFile)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.addr, "addr", envOr("DEALPILOT_ADDR", "http://127.0.0.1:8080"), "dealpilotd base url")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before running")
	pf.StringVar(&rootFlags.timeout, "timeout", "30m", "overall deadline for the command")
	pf.StringVar(&rootFlags.token, "token", "", "api token for dealpilotd (default $DEALPILOT_TOKEN)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
