package main

import (
	"os"

	"github.com/ashureev/strategic-discovery/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
