// Command pathscout is a high-concurrency web content discovery tool: it
// probes candidate paths under one or more starting URLs, recurses into
// discovered directories, extracts links, deduplicates and filters
// responses, and adapts its request rate to server error signals.
package main

import (
	"fmt"
	"os"

	"github.com/pathscout/pathscout/cmd/pathscout/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
