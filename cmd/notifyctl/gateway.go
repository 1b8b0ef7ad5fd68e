package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"civicnotify/internal/config"
	"civicnotify/internal/gateway"
)

// gatewayChecker is the read-only part of the gateway client.
type gatewayChecker interface {
	InstanceStatus(ctx context.Context) (gateway.InstanceStatus, error)
	QueueStatus(ctx context.Context) (map[string]any, error)
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Show messaging gateway instance and queue status",
		Long: `Ask the messaging gateway whether the instance is authenticated and
how many messages are waiting in its queue. Sends nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.GatewayInstanceID == "" || cfg.GatewayToken == "" {
				return fmt.Errorf("ULTRAMSG_INSTANCE_ID and ULTRAMSG_TOKEN must be set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			res := checkGateway(ctx, cfg.GatewayInstanceID, gateway.NewFromConfig(cfg))
			return outputResult(cmd.OutOrStdout(), res, outputFmt)
		},
	}
}

// checkGateway collects both checks; a failing check is reported, not returned.
func checkGateway(ctx context.Context, instance string, gw gatewayChecker) GatewayResult {
	res := GatewayResult{Instance: instance}

	st, err := gw.InstanceStatus(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "instance status: "+err.Error())
	} else {
		res.AccountStatus = st.AccountStatus
		res.Authenticated = st.Authenticated()
	}

	q, err := gw.QueueStatus(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "queue status: "+err.Error())
	} else {
		res.Queue = q
	}

	return res
}
