// Command shorts runs the short-video service and talks to a running one.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var Version = "0.1.0"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
