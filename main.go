package main

import (
	"os"

	"github.com/fieldserv/matchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
