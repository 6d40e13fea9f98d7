package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newBroadcastCmd(gf *globalFlags) *cobra.Command {
	var (
		agentID  string
		priority string
		group    string
	)

	cmd := &cobra.Command{
		Use:   "broadcast <message>",
		Short: "Send a message to every active agent",
		Long:  "Delivers a message to every other active agent, or to one group with --group.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.Broadcast(background(cmd), agentID, joinArgs(args), priority, group))
			})
		},
	}

	agentFlag(cmd, &agentID)
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "message priority: low, normal, high")
	cmd.Flags().StringVarP(&group, "group", "g", "", "only deliver to this group")
	return cmd
}

func newDMCmd(gf *globalFlags) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "dm <agent> <message>",
		Short: "Send a direct message to one agent",
		Long:  "Delivers a message to one agent, addressed by full ID or by name. When several agents share a name the most recently seen one receives it.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.DirectMessage(background(cmd), agentID, args[0], joinArgs(args[1:])))
			})
		},
	}

	agentFlag(cmd, &agentID)
	return cmd
}

func newCheckCmd(gf *globalFlags) *cobra.Command {
	var (
		agentID string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Pull pending messages from the bus",
		Long:  "Listens on this agent's direct and broadcast subjects for up to --timeout and prints what arrived. Requires the nats transport.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.CheckMessages(background(cmd), agentID, timeout))
			})
		},
	}

	agentFlag(cmd, &agentID)
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "how long to listen (default from config)")
	return cmd
}
