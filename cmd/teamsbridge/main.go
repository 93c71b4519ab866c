package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/answerdeskai/teamsbridge/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "teamsbridge",
		Short:   "Bridge between Microsoft Teams and the answer service",
		Version: version.GetInfo(),
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
