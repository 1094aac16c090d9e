package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adamgarcia4/goLearning/gossipfd/logger"
	"github.com/adamgarcia4/goLearning/gossipfd/node"
)

var startConfig = node.DefaultConfig(node.DefaultName)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a single gossip process",
	Long: `Start one gossip process and run it until interrupted.

Examples:
  # Start the introducer
  gossipfd start --name=process-1 --port=50051

  # Start a process that joins through it
  gossipfd start --name=process-2 --port=50052 --introducer=127.0.0.1:50051`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&startConfig.Host, "host", "a", node.DefaultHost, "Host to bind the UDP socket to")
	startCmd.Flags().IntVarP(&startConfig.Port, "port", "p", node.DefaultPort, "UDP port to bind")
	startCmd.Flags().StringVarP(&startConfig.Name, "name", "n", node.DefaultName, "Process name used in logs and metrics")
	startCmd.Flags().StringVarP(&startConfig.Introducer, "introducer", "i", "", "Introducer host:port (empty: this process is the introducer)")
	bindGossipFlags(startCmd, &startConfig.GossipSettings)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger.Init("", true)
	defer logger.Sync()

	n, err := node.New(startConfig, logger.Named(startConfig.Name))
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	if !n.InitNode() || !n.IntroduceSelfToGroup() {
		n.Shutdown()
		n.Run(context.Background())
		return fmt.Errorf("failed to join the group")
	}

	// Run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ok := n.Run(ctx)
	st := n.Status()
	logger.L().Info("process stopped",
		zap.Bool("ok", ok),
		zap.Int64("heartbeat", st.Heartbeat),
		zap.Int("members", len(st.Members)))
	if !ok {
		return fmt.Errorf("process %s did not stop cleanly", n.Name())
	}
	return nil
}
