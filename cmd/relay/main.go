// Package main is the relay CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"relay/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
