package del

import (
	"fmt"

	"github.com/recachelabs/recache/internal/cmd/util"
	"github.com/recachelabs/recache/pkg/server"
	"github.com/spf13/cobra"
)

func NewDeleteCmd() *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key-value pair from the cache",
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
			r, err := client.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(r)
			return nil
		},
	}

	return deleteCmd
}
