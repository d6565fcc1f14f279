package main

import (
	"os"

	"github.com/recachelabs/recache/internal/cmd"
	del "github.com/recachelabs/recache/internal/cmd/delete"
	"github.com/recachelabs/recache/internal/cmd/get"
	"github.com/recachelabs/recache/internal/cmd/put"
	"github.com/recachelabs/recache/internal/cmd/stats"
)

func main() {
	recacheCmd := cmd.NewRecacheCmd()
	putCmd := put.NewPutCmd()
	getCmd := get.NewGetCmd()
	deleteCmd := del.NewDeleteCmd()
	statsCmd := stats.NewStatsCmd()

	recacheCmd.AddCommand(putCmd, getCmd, deleteCmd, statsCmd)
	if err := recacheCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
