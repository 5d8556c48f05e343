// Package meetings implements the meeting listing and detail commands.
package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/trace"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	memori "github.com/sriramvarun3/Memori"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/bootstrap"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdMeetings = &base.Command{
	UsageLine: "memori meetings [flags]",
	Short:     "list meetings from Granola",
	Long: `
Meetings lists your Granola meetings.

A previously fetched snapshot is served from the local cache; use -refresh to
fetch a fresh list from the server.  By default the last 30 days are
requested; use -from and -to to change the window.
`,
	FlagMask:    cfg.OmitAPIKeyFlag,
	PrintFlags:  true,
	RequireAuth: true,
}

var CmdMeeting = &base.Command{
	UsageLine: "memori meeting <id>",
	Short:     "show the notes of a single meeting",
	Long: `
Meeting fetches and prints the notes of a single meeting, identified by its
ID as shown in the meetings list.
`,
	FlagMask:    cfg.OmitAPIKeyFlag,
	PrintFlags:  true,
	RequireAuth: true,
}

var (
	fRefresh = CmdMeetings.Flag.Bool("refresh", false, "fetch a fresh list from the server instead of the local snapshot")
	fJSON    = CmdMeetings.Flag.Bool("json", false, "output the list as JSON")
	fFrom    cfg.TimeValue
	fTo      cfg.TimeValue
)

func init() {
	CmdMeetings.Run = runMeetings
	CmdMeetings.Flag.Var(&fFrom, "from", "list meetings since the given `date` (default: 30 days ago)")
	CmdMeetings.Flag.Var(&fTo, "to", "list meetings until the given `date` (default: today)")
	CmdMeeting.Run = runMeeting
}

func runMeetings(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "meetings")
	defer task.End()

	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	res := svc.Meetings(ctx, time.Time(fFrom), time.Time(fTo), *fRefresh)
	if res.Err != "" {
		base.SetExitStatus(base.SApplicationError)
		return errors.New(res.Err)
	}
	if *fJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printMeetings(res)
	return nil
}

func printMeetings(res memori.MeetingsResult) {
	if len(res.Meetings) == 0 {
		fmt.Println("No meetings found.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tATTENDEES")
	for _, m := range res.Meetings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Date, m.Title, strings.Join(m.Attendees, ", "))
	}
	tw.Flush()
	fmt.Printf("\n%d meetings", len(res.Meetings))
	if !res.CachedAt.IsZero() {
		fmt.Printf(", cached %s (use -refresh to update)", humanize.Time(res.CachedAt))
	}
	fmt.Println()
}

func runMeeting(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "meeting")
	defer task.End()

	if len(args) == 0 || args[0] == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("meeting ID must be specified")
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	res := svc.MeetingDetail(ctx, args[0])
	if res.Err != "" {
		base.SetExitStatus(base.SApplicationError)
		return errors.New(res.Err)
	}
	color.New(color.Bold).Println(args[0])
	fmt.Println(res.Meeting)
	return nil
}
