package cmd

import (
	"github.com/spf13/cobra"
)

func NewRecacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recache-cli",
		Short: "A CLI client for the recache bounded recency cache server",
	}
	cmd.PersistentFlags().String("host", "localhost", "Server host address")
	cmd.PersistentFlags().IntP("port", "p", 5051, "Server port number")
	return cmd
}
