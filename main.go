package main

import (
	"os"

	"github.com/dsandi/seed-it/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
