package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/strategic-discovery/internal/grpchealth"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func HealthCmd() *cobra.Command {
	var (
		addr    string
		service string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a server's gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := grpchealth.Check(ctx, addr, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", addr, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9090", "gRPC health address")
	cmd.Flags().StringVar(&service, "service", grpchealth.ServiceName, "Service name to check")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Check deadline")
	return cmd
}
