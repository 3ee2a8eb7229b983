// Command dogs runs the dog demo: an HTTP server, a scripted walk through
// the demo, or a single fetch-policy decision.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
