package stats

import (
	"fmt"

	"github.com/recachelabs/recache/internal/cmd/util"
	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/cobra"
)

func NewStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size, capacity and hit/miss/eviction counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := util.GetAddress(cmd.Flags())
			if err != nil {
				return err
			}
			client, err := server.Dial(address)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			defer client.Close()

			ctx, cancel := util.RequestContext(cmd.Context())
			defer cancel()
			r, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Println(r)
			return nil
		},
	}

	return statsCmd
}
