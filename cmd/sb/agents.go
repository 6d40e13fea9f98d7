package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/switchboard"
)

func newRegisterCmd(gf *globalFlags) *cobra.Command {
	var (
		req    switchboard.RegisterRequest
		export bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this agent and print its ID",
		Long:  "Registers an agent under a name and group. With the tmux transport the current pane is used as the delivery target unless --pane is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return runRegister(cmd, gf, a, req, export)
			})
		},
	}

	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "agent name (required)")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "what this agent is working on")
	cmd.Flags().StringVarP(&req.Group, "group", "g", "", "group to join (default \"default\")")
	cmd.Flags().StringVar(&req.RouteHint, "pane", "", "tmux pane to deliver to, e.g. work:1.0")
	cmd.Flags().BoolVar(&export, "export", false, "print a shell export line for "+agentEnv)
	cmd.MarkFlagRequired("name")
	return cmd
}

func runRegister(cmd *cobra.Command, gf *globalFlags, a *app, req switchboard.RegisterRequest, export bool) error {
	ctx := background(cmd)
	if req.RouteHint == "" && a.tmux != nil {
		pane, err := a.tmux.CurrentPane(ctx)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		req.RouteHint = pane
	}

	resp := a.svc.Register(ctx, req)
	if export && !resp.IsError && !gf.jsonOut {
		if agent, ok := resp.Data.(*models.Agent); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", agentEnv, agent.ID)
			return nil
		}
	}
	return printResponse(cmd, gf, resp)
}

func newDeregisterCmd(gf *globalFlags) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "deregister",
		Short: "Remove an agent from the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.Deregister(background(cmd), agentID))
			})
		},
	}

	agentFlag(cmd, &agentID)
	return cmd
}

func newDiscoverCmd(gf *globalFlags) *cobra.Command {
	var (
		stale bool
		group string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List active agents",
		Long:  "Lists agents seen recently. Use --stale to include agents that have gone quiet; they are marked " + switchboard.StaleMarker + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.Discover(background(cmd), stale, group))
			})
		},
	}

	cmd.Flags().BoolVar(&stale, "stale", false, "include stale agents")
	cmd.Flags().StringVarP(&group, "group", "g", "", "only list agents in this group")
	return cmd
}

func newGroupsCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List groups and their member counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				return printResponse(cmd, gf, a.svc.Groups(background(cmd)))
			})
		},
	}
}

func newHeartbeatCmd(gf *globalFlags) *cobra.Command {
	var (
		agentID string
		status  string
		every   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Mark this agent as alive",
		Long:  "Refreshes the agent's last-seen time once, or every --every until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statusPtr *string
			if cmd.Flags().Changed("status") {
				statusPtr = &status
			}
			return withApp(gf, func(a *app) error {
				resp := a.svc.Heartbeat(background(cmd), agentID, statusPtr)
				if err := printResponse(cmd, gf, resp); err != nil || every <= 0 {
					return err
				}
				return runHeartbeatLoop(cmd, a, agentID, every, statusPtr)
			})
		},
	}

	agentFlag(cmd, &agentID)
	cmd.Flags().StringVarP(&status, "status", "s", "", "status text to publish")
	cmd.Flags().DurationVar(&every, "every", 0, "keep sending heartbeats at this interval")
	return cmd
}

func runHeartbeatLoop(cmd *cobra.Command, a *app, agentID string, every time.Duration, status *string) error {
	ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := a.registry.StartHeartbeat(ctx, agentID, every, status)
	fmt.Fprintf(cmd.OutOrStdout(), "Sending heartbeats every %s (Ctrl+C to stop)\n", every)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
