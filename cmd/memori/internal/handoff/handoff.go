// Package handoff implements the context handoff commands.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/trace"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/bootstrap"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
	"github.com/sriramvarun3/Memori/internal/compress"
)

var CmdHandoff = &base.Command{
	UsageLine: "memori handoff",
	Short:     "manage context handoffs",
	Long: `
Handoff manages context handoffs: conversation transcripts compressed into a
structured summary that can be pasted into a fresh AI chat to continue where
the previous one left off.
`,
	Commands: []*base.Command{
		cmdHandoffList,
		cmdHandoffSave,
		cmdHandoffShow,
		cmdHandoffRm,
	},
}

var cmdHandoffList = &base.Command{
	UsageLine:  "memori handoff list",
	Short:      "list stored handoffs",
	Long:       `List prints the stored context handoffs, newest first.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var cmdHandoffSave = &base.Command{
	UsageLine: "memori handoff save [flags]",
	Short:     "compress a conversation from stdin and store it",
	Long: `
Save reads a conversation transcript from standard input, compresses it into
a structured handoff using OpenAI, and stores the result.

The transcript is split into turns on lines starting with "User:" and
"Assistant:"; text before the first marker is treated as a user turn.  If
compression fails, the raw transcript is stored instead, so the conversation
is never lost.

Requires an OpenAI API key (flag -openai-key or environment OPENAI_API_KEY).
`,
	FlagMask:   cfg.OmitEndpoint,
	PrintFlags: true,
}

var cmdHandoffShow = &base.Command{
	UsageLine:  "memori handoff show <id>",
	Short:      "print the content of a handoff",
	Long:       `Show prints the full content of the handoff with the given ID.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var cmdHandoffRm = &base.Command{
	UsageLine:  "memori handoff rm <id>",
	Short:      "delete a handoff",
	Long:       `Rm deletes the handoff with the given ID.`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var (
	fListJSON = cmdHandoffList.Flag.Bool("json", false, "output the list as JSON")
	fRmYes    = cmdHandoffRm.Flag.Bool("y", false, "answer yes to all questions")
)

// yesNo is a seam for tests.
var yesNo = base.YesNo

func init() {
	cmdHandoffList.Run = runHandoffList
	cmdHandoffSave.Run = runHandoffSave
	cmdHandoffShow.Run = runHandoffShow
	cmdHandoffRm.Run = runHandoffRm
}

func runHandoffList(ctx context.Context, cmd *base.Command, args []string) error {
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	hh, err := svc.Cache().Handoffs()
	if err != nil {
		base.SetExitStatus(base.SCacheError)
		return err
	}
	if *fListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hh)
	}
	if len(hh) == 0 {
		fmt.Println("No context handoffs stored yet.")
		return nil
	}
	for _, h := range hh {
		color.New(color.Bold).Printf("%s", h.ID)
		fmt.Printf("  %s  (%d messages, %s)\n", h.Title, h.MessageCount, humanize.Time(h.Timestamp))
	}
	return nil
}

func runHandoffSave(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "handoff save")
	defer task.End()

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	conv := splitTranscript(string(data))
	if len(conv) == 0 {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("empty transcript on stdin")
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	res := svc.CompressAndSave(ctx, conv)
	if res.Err != "" {
		base.SetExitStatus(base.SApplicationError)
		return errors.New(res.Err)
	}
	fmt.Printf("Handoff %s saved: %s\n", res.Handoff.ID, res.Handoff.Title)
	return nil
}

func runHandoffShow(ctx context.Context, cmd *base.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("handoff ID must be specified")
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	hh, err := svc.Cache().Handoffs()
	if err != nil {
		base.SetExitStatus(base.SCacheError)
		return err
	}
	for _, h := range hh {
		if h.ID == args[0] {
			color.New(color.Bold).Println(h.Title)
			fmt.Println(h.Content)
			return nil
		}
	}
	base.SetExitStatus(base.SUserError)
	return fmt.Errorf("no handoff with ID %q", args[0])
}

func runHandoffRm(ctx context.Context, cmd *base.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("handoff ID must be specified")
	}
	if !*fRmYes && !yesNo(fmt.Sprintf("This will delete handoff %s", args[0])) {
		base.SetExitStatus(base.SNoError)
		return base.ErrOpCancelled
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	if err := svc.Cache().DeleteHandoff(args[0]); err != nil {
		base.SetExitStatus(base.SCacheError)
		return err
	}
	fmt.Printf("Handoff %s deleted.\n", args[0])
	return nil
}

// splitTranscript splits a plain text transcript into conversation turns on
// lines starting with "User:" and "Assistant:".  Text before the first
// marker becomes a user turn.
func splitTranscript(text string) []compress.Message {
	var (
		conv []compress.Message
		role = "user"
		buf  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			conv = append(conv, compress.Message{Role: role, Content: s})
		}
		buf.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "User:"):
			flush()
			role = "user"
			buf.WriteString(strings.TrimPrefix(line, "User:"))
		case strings.HasPrefix(line, "Assistant:"):
			flush()
			role = "assistant"
			buf.WriteString(strings.TrimPrefix(line, "Assistant:"))
		default:
			buf.WriteString("\n")
			buf.WriteString(line)
		}
	}
	flush()
	return conv
}
