package main

import (
	"context"
	"fmt"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var cmdVersion = &base.Command{
	UsageLine: "memori version",
	Short:     "print version and exit",
	Long: `
Prints version and exits, not much else to say.
`,
	FlagMask: cfg.OmitAll,
	Run:      runVersion,
}

func runVersion(ctx context.Context, cmd *base.Command, args []string) error {
	fmt.Printf("memori %s (commit: %s) built on: %s\n", version, commit, date)
	return nil
}
