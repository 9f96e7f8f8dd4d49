// Package main provides the entry point for the loctrail CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/loctrail/cmd/loctrail/commands"
	"github.com/Sumatoshi-tech/loctrail/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
