package main

import (
	"errors"
	"os"

	"github.com/kiln/kiln/pkg/cli"
)

// version is stamped at build time via -ldflags
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		if errors.Is(err, cli.ErrCancelled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
