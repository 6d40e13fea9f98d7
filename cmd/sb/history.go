package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newChannelCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Named message channels",
		Long:  "Channels are shared topics kept in the history ledger. Messages sent to a channel are read on demand and never typed into panes.",
	}

	cmd.AddCommand(newChannelSendCmd(gf))
	cmd.AddCommand(newChannelHistoryCmd(gf))
	cmd.AddCommand(newChannelListCmd(gf))
	return cmd
}

func newChannelSendCmd(gf *globalFlags) *cobra.Command {
	var (
		agentID  string
		priority string
	)

	cmd := &cobra.Command{
		Use:   "send <channel> <message>",
		Short: "Post a message to a channel",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.ChannelSend(background(cmd), agentID, args[0], joinArgs(args[1:]), priority))
			})
		},
	}

	agentFlag(cmd, &agentID)
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "message priority: low, normal, high")
	return cmd
}

func newChannelHistoryCmd(gf *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <channel>",
		Short: "Show recent messages in a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.ChannelHistory(background(cmd), args[0], limit))
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "number of messages (default 50)")
	return cmd
}

func newChannelListCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List channels with message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.ChannelList(background(cmd)))
			})
		},
	}
}

func newDMHistoryCmd(gf *globalFlags) *cobra.Command {
	var (
		agentID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "dm-history <agent>",
		Short: "Show direct messages exchanged with another agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.DMHistory(background(cmd), agentID, args[0], limit))
			})
		},
	}

	agentFlag(cmd, &agentID)
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "number of messages (default 50)")
	return cmd
}

func newMessagesSinceCmd(gf *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages-since <cursor>",
		Short: "Show every recorded message after a cursor",
		Long:  "Prints ledger entries newer than the given cursor, oldest first. Use 0 to start from the beginning.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid cursor %q: must be a non-negative integer", args[0])
			}
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.MessagesSince(background(cmd), cursor, limit))
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "number of messages (default 50)")
	return cmd
}
