package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/gossipfd/node"
)

var rootCmd = &cobra.Command{
	Use:   "gossipfd",
	Short: "Gossip membership failure detector",
	Long: `A gossip-style membership protocol over UDP: processes join through an
introducer, disseminate heartbeats to random peers and drop peers that stay
silent for TFAIL+TREMOVE seconds.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindGossipFlags registers the protocol flags shared by every command
func bindGossipFlags(cmd *cobra.Command, s *node.GossipSettings) {
	f := cmd.Flags()
	f.DurationVar(&s.TFail, "tfail", s.TFail, "Silence before a peer is suspected")
	f.DurationVar(&s.TRemove, "tremove", s.TRemove, "Extra grace before a suspected peer is removed")
	f.DurationVar(&s.TGossip, "tgossip", s.TGossip, "Gossip period")
	f.IntVar(&s.KList, "klist", s.KList, "Max peers in the partial view")
	f.IntVar(&s.Gossip, "gossip", s.Gossip, "Gossip fan-out per round")
	f.DurationVar(&s.PollTimeout, "poll-timeout", s.PollTimeout, "UDP receive poll timeout")
	f.IntVar(&s.MaxPayloadSize, "max-payload", s.MaxPayloadSize, "Max datagram size in bytes")
	f.IntVar(&s.JoinRetryTicks, "join-retry-ticks", s.JoinRetryTicks, "Ticks between join retries (0 disables)")
	f.Float64Var(&s.DropRate, "drop-rate", s.DropRate, "Probability of dropping an outbound datagram")
}

// gossipFlagSetters copies each changed gossip flag from src into dst
func gossipFlagSetters(dst, src *node.GossipSettings) map[string]func() {
	return map[string]func(){
		"tfail":            func() { dst.TFail = src.TFail },
		"tremove":          func() { dst.TRemove = src.TRemove },
		"tgossip":          func() { dst.TGossip = src.TGossip },
		"klist":            func() { dst.KList = src.KList },
		"gossip":           func() { dst.Gossip = src.Gossip },
		"poll-timeout":     func() { dst.PollTimeout = src.PollTimeout },
		"max-payload":      func() { dst.MaxPayloadSize = src.MaxPayloadSize },
		"join-retry-ticks": func() { dst.JoinRetryTicks = src.JoinRetryTicks },
		"drop-rate":        func() { dst.DropRate = src.DropRate },
	}
}
