package main

import (
	"fmt"
	"os"

	"github.com/readstack/readstack/internal/cli"
	"github.com/readstack/readstack/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "readstackd",
		Short: "Readstack daemon and CLI",
		Long:  "Readstack daemon for running the retrieval-augmented QA API server and managing registered models",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ModelsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
