// Package memory implements the local memory store commands.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/bootstrap"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
	"github.com/sriramvarun3/Memori/internal/cache"
)

var CmdMemory = &base.Command{
	UsageLine: "memori memory",
	Short:     "manage saved memories",
	Long: `
Memory manages the local memory store: short snippets captured from your
conversations.  Memories are kept newest-first with a fixed cap; the oldest
are dropped when the store is full.
`,
	Commands: []*base.Command{
		cmdMemoryList,
		cmdMemoryAdd,
		cmdMemoryRm,
	},
}

var cmdMemoryList = &base.Command{
	UsageLine:  "memori memory list",
	Short:      "list saved memories",
	Long:       `List prints the saved memories, newest first.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var cmdMemoryAdd = &base.Command{
	UsageLine:  "memori memory add <text>",
	Short:      "save a memory",
	Long:       `Add saves the given text as a memory.  Multiple arguments are joined with spaces.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var cmdMemoryRm = &base.Command{
	UsageLine:  "memori memory rm <id>",
	Short:      "delete a memory",
	Long:       `Rm deletes the memory with the given ID.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var (
	fListJSON = cmdMemoryList.Flag.Bool("json", false, "output the list as JSON")
	fRmYes    = cmdMemoryRm.Flag.Bool("y", false, "answer yes to all questions")
)

// yesNo is a seam for tests.
var yesNo = base.YesNo

func init() {
	cmdMemoryList.Run = runMemoryList
	cmdMemoryAdd.Run = runMemoryAdd
	cmdMemoryRm.Run = runMemoryRm
}

func runMemoryList(ctx context.Context, cmd *base.Command, args []string) error {
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	mm, err := svc.Cache().Memories()
	if err != nil {
		base.SetExitStatus(base.SCacheError)
		return err
	}
	if *fListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mm)
	}
	if len(mm) == 0 {
		fmt.Println("No memories saved yet.")
		return nil
	}
	for _, m := range mm {
		color.New(color.Bold).Printf("%s", m.ID)
		fmt.Printf("  (%s, %s)\n", m.Type, humanize.Time(m.Timestamp))
		fmt.Printf("  %s\n", m.Text)
	}
	return nil
}

func runMemoryAdd(ctx context.Context, cmd *base.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("memory text must be specified")
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	res := svc.SaveMemory(text, cache.MemoryUser, 0)
	if res.Err != "" {
		base.SetExitStatus(base.SCacheError)
		return errors.New(res.Err)
	}
	fmt.Printf("Memory %s saved.\n", res.Memory.ID)
	return nil
}

func runMemoryRm(ctx context.Context, cmd *base.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("memory ID must be specified")
	}
	if !*fRmYes && !yesNo(fmt.Sprintf("This will delete memory %s", args[0])) {
		base.SetExitStatus(base.SNoError)
		return base.ErrOpCancelled
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	if err := svc.Cache().DeleteMemory(args[0]); err != nil {
		base.SetExitStatus(base.SCacheError)
		return err
	}
	fmt.Printf("Memory %s deleted.\n", args[0])
	return nil
}
