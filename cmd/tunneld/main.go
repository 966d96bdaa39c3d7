package main

import (
	"os"

	"github.com/printlink/tunnel/cmd/tunneld/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
