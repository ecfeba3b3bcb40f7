package cmd

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/discovery/etcd"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	etcdEndpoints []string
	nodesService  string
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List gateway nodes registered in etcd",
	RunE: func(cmd *cobra.Command, args []string) error {
		sd, err := etcd.NewServiceDiscovery(&config.EtcdConfig{Endpoints: etcdEndpoints}, nil)
		if err != nil {
			return err
		}
		defer sd.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		nodes, err := sd.Discover(ctx, nodesService)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no nodes registered")
			return nil
		}
		for _, n := range nodes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n.ID, n.Address)
		}
		return nil
	},
}

func init() {
	nodesCmd.Flags().StringSliceVar(&etcdEndpoints, "etcd", []string{"localhost:2379"}, "etcd endpoints")
	nodesCmd.Flags().StringVar(&nodesService, "service", "workspace_service", "registered service name")
	rootCmd.AddCommand(nodesCmd)
}
