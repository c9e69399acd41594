package main

import (
	"os"

	"github.com/smallnest/roadclaw/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
