package main

import (
	"fmt"
	"os"

	"github.com/Kocoro-lab/repo-research/cmd/researchctl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
