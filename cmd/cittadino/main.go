package main

import (
	"os"

	"github.com/cittadino-app/cittadino/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
