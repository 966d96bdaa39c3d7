package main

import (
	"os"

	"github.com/printlink/tunnel/cmd/tunnelctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
