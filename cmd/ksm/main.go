package main

import (
	"os"

	"github.com/awnumar/memguard"

	"github.com/nace/ksm/internal/cli"
)

func main() {
	// Wipe key material buffers if interrupted mid-write
	memguard.CatchInterrupt()

	ctx := cli.NewGlobalContext(false, false, false, false)
	rootCmd := cli.NewRootCommand(ctx)

	err := rootCmd.Execute()
	memguard.Purge()
	if err != nil {
		ctx.ReportError(err)
		os.Exit(1)
	}
}
