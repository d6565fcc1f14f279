package get

import (
	"errors"
	"fmt"

	"github.com/recachelabs/recache/internal/cmd/util"
	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/cobra"
)

func NewGetCmd() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key from the cache",
		Args:  cobra.ExactArgs(1),
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
			value, err := client.Get(ctx, args[0])
			if errors.Is(err, server.ErrKeyNotFound) {
				fmt.Println("key not found")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	return getCmd
}
