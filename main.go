package main

import (
	"os"

	"github.com/promnight/prom-match/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
