// Package main is the entry point for the avakeys credential and vendor
// secret tool.
package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	memguard.CatchInterrupt()

	err := newRootCommand().Execute()
	memguard.Purge()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
