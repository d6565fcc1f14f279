package put

import (
	"fmt"

	"github.com/recachelabs/recache/internal/cmd/util"
	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/cobra"
)

func NewPutCmd() *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Add or update a key-value pair in the cache",
		Long: `Put stores a key and value in the cache, promoting the key to
most recently used. If the cache is full, the least recently used entry
is evicted to make room.

Arguments:
  key   - the cache key
  value - the value to store under the key`,
		Args: cobra.ExactArgs(2),
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
			r, err := client.Put(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(r)
			return nil
		},
	}

	return putCmd
}
