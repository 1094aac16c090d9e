package cmd

import (
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/gossip"
	"github.com/adamgarcia4/goLearning/gossipfd/logger"
	"github.com/adamgarcia4/goLearning/gossipfd/node"
	"github.com/adamgarcia4/goLearning/gossipfd/telemetry"
	"github.com/adamgarcia4/goLearning/gossipfd/transport"
)

var (
	simConfigPath string
	simFlags      = node.DefaultSimulationConfig()
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run N gossip processes on consecutive ports for a fixed duration",
	Long: `Run a local cluster of gossip processes, then print every process's
membership view as it stood when the run ended.

Examples:
  # 5 processes for 10 seconds
  gossipfd simulate

  # silence process 3 two seconds in and watch the others remove it
  gossipfd simulate --fail-index=2 --fail-after=2s

  # settings from a file, with metrics and a health endpoint
  gossipfd simulate --config=sim.yaml --metrics-addr=:9100 --admin-addr=127.0.0.1:50100`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.StringVarP(&simConfigPath, "config", "c", "", "YAML simulation config; flags override it")
	f.IntVarP(&simFlags.Count, "count", "n", simFlags.Count, "Number of processes")
	f.StringVar(&simFlags.Host, "host", simFlags.Host, "Host every process binds to")
	f.IntVar(&simFlags.BasePort, "base-port", simFlags.BasePort, "Port of the first process")
	f.DurationVarP(&simFlags.Duration, "duration", "d", simFlags.Duration, "How long the processes run")
	f.IntVar(&simFlags.IntroducerIndex, "introducer-index", simFlags.IntroducerIndex, "Index of the introducer (negative: random)")
	f.IntVar(&simFlags.FailIndex, "fail-index", simFlags.FailIndex, "Index of a process to silence (negative: none)")
	f.DurationVar(&simFlags.FailAfter, "fail-after", simFlags.FailAfter, "When to silence --fail-index")
	f.StringVar(&simFlags.AdminAddr, "admin-addr", "", "Serve gRPC health for each process on this address")
	f.StringVar(&simFlags.MetricsAddr, "metrics-addr", "", "Serve prometheus /metrics on this address")
	bindGossipFlags(simulateCmd, &simFlags.Gossip)
}

// resolveSimulationConfig applies changed flags over the config file, if any
func resolveSimulationConfig(cmd *cobra.Command) (*node.SimulationConfig, error) {
	if simConfigPath == "" {
		cfg := *simFlags
		return &cfg, nil
	}

	cfg, err := node.LoadSimulationConfig(simConfigPath)
	if err != nil {
		return nil, err
	}

	setters := gossipFlagSetters(&cfg.Gossip, &simFlags.Gossip)
	setters["count"] = func() { cfg.Count = simFlags.Count }
	setters["host"] = func() { cfg.Host = simFlags.Host }
	setters["base-port"] = func() { cfg.BasePort = simFlags.BasePort }
	setters["duration"] = func() { cfg.Duration = simFlags.Duration }
	setters["introducer-index"] = func() { cfg.IntroducerIndex = simFlags.IntroducerIndex }
	setters["fail-index"] = func() { cfg.FailIndex = simFlags.FailIndex }
	setters["fail-after"] = func() { cfg.FailAfter = simFlags.FailAfter }
	setters["admin-addr"] = func() { cfg.AdminAddr = simFlags.AdminAddr }
	setters["metrics-addr"] = func() { cfg.MetricsAddr = simFlags.MetricsAddr }

	for name, set := range setters {
		if cmd.Flags().Changed(name) {
			set()
		}
	}
	return cfg, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger.Init("", true)
	defer logger.Sync()

	cfg, err := resolveSimulationConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}

	manager := node.NewManager(cfg, logger.L())
	defer manager.StopAll()

	if cfg.MetricsAddr != "" {
		srv := telemetry.Serve(cfg.MetricsAddr, func(err error) {
			logger.L().Error("metrics server failed", zap.Error(err))
		})
		defer srv.Close()
	}

	if cfg.AdminAddr != "" {
		admin, err := transport.NewGRPC(cfg.AdminAddr, logger.Named("admin"))
		if err != nil {
			return err
		}
		if err := admin.Start(); err != nil {
			return fmt.Errorf("failed to start admin server: %w", err)
		}
		defer admin.Stop()
		manager.SetAdmin(admin)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := manager.Simulate(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	if !report.AllOK() {
		return fmt.Errorf("some processes did not stop cleanly")
	}
	return nil
}

func renderReport(r *node.Report) string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	s.WriteString(titleStyle.Render(fmt.Sprintf("Run %s  introducer %s  duration %s", r.RunID, r.Introducer, r.Duration)))
	s.WriteString("\n")

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROCESS", "ENDPOINT", "STATE", "HEARTBEAT", "MEMBERS", "FAILED", "OK")
	for _, p := range r.Processes {
		name := p.Name
		if p.Introducer {
			name += " *"
		}
		if p.Muted {
			name += " (silenced)"
		}
		t.Row(
			name,
			p.EndPoint.String(),
			p.State.String(),
			strconv.FormatInt(p.Heartbeat, 10),
			joinEntries(p.Members),
			joinEndPoints(p.Failed),
			strconv.FormatBool(p.OK),
		)
	}
	s.WriteString(t.Render())
	return s.String()
}

func joinEntries(entries []gossip.MemberListEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%d:%d", e.EndPoint.Port, e.Heartbeat))
	}
	return strings.Join(parts, " ")
}

func joinEndPoints(eps []gossip.EndPoint) string {
	if len(eps) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(eps))
	for _, ep := range eps {
		parts = append(parts, ep.String())
	}
	return strings.Join(parts, " ")
}
