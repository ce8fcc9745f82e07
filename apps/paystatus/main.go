package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// errTimedOut maps to exit code 2: the order is still unresolved.
var errTimedOut = errors.New("status unknown")

func main() {
	rootCmd := &cobra.Command{
		Use:           "paystatus",
		Short:         "Poll a registration payment until it settles",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errTimedOut) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
