// Package main is the entry point for the flat flow-metadata tap.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/flat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
