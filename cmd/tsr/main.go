// Command tsr runs and inspects a timeline conductor.
//
// Usage:
//
//	tsr [--verbose] [--format text|json] <command>
//
// Commands:
//
//	run        start a conductor and play a timeline until interrupted
//	resolve    resolve a timeline once and print the per-device states
//	validate   check a configuration, timeline and datastore
//	datastore  list, set, delete or import persisted datastore entries
//	stats      show journaled resolve cycles and timeline callbacks
//
// Examples:
//
//	tsr validate studio.cue --timeline rundown.yaml
//	tsr resolve studio.cue --timeline rundown.yaml --at 1000
//	tsr run studio.cue --timeline rundown.yaml --db ./tsr.db
package main

import (
	"fmt"
	"os"

	"github.com/tv2norge/sofie-timeline-state-resolver-sub000/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tsr:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
