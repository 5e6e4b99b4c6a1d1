package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hunter-fleet/nm-backport-agent/internal/backport"
	"github.com/hunter-fleet/nm-backport-agent/internal/config"
	"github.com/hunter-fleet/nm-backport-agent/internal/dispatch"
	"github.com/hunter-fleet/nm-backport-agent/internal/health"
	"github.com/hunter-fleet/nm-backport-agent/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nm-backport-agent",
	Short: "NetworkManager backport installer agent",
	Long:  "Fleet agent extension that keeps a NetworkManager version backport installed on Debian-family devices",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent and its health-check loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent()
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run one install pass and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(dispatch.CmdInstallBackport)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current backport status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(dispatch.CmdCheckStatus)
	},
}

var doCmd = &cobra.Command{
	Use:   "do [command]",
	Short: "Invoke a named agent command",
	Long:  "Invoke any dispatcher command by name: " + fmt.Sprint(dispatch.Names()),
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchOnce(args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nm-backport-agent v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/nm-backport/nm-backport.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(doCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildAgent loads and validates config, initializes logging, and wires
// the component graph. The scheduler is only created when auto_install is
// configured.
func buildAgent() (*dispatch.Dispatcher, *backport.Scheduler, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, nil)

	inspector := backport.NewInspector(cfg)
	orch := backport.NewOrchestrator(cfg)
	services := backport.NewServiceController()
	monitor := health.NewMonitor()

	var sched *backport.Scheduler
	var task dispatch.BackgroundTask
	if cfg.AutoInstall {
		sched = backport.NewScheduler(cfg, inspector, orch, monitor)
		task = sched
	}

	disp := dispatch.New(cfg, inspector, orch, services, task, monitor)
	return disp, sched, nil
}

func runAgent() error {
	_, sched, err := buildAgent()
	if err != nil {
		return err
	}

	fmt.Printf("Starting nm-backport-agent v%s\n", version)

	if sched != nil {
		sched.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down agent...")
	if sched != nil {
		sched.Stop()
	}
	return nil
}

// dispatchOnce runs a single command the way the host runtime would and
// prints the JSON response.
func dispatchOnce(name string) error {
	disp, _, err := buildAgent()
	if err != nil {
		return err
	}

	result := disp.Dispatch(context.Background(), name)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.Status != dispatch.StatusCompleted {
		os.Exit(1)
	}
	return nil
}
