// Command memori grounds AI conversations in Granola meeting notes and
// keeps a local memory store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rusq/tracer"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/apicfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/ask"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/connect"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/help"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/handoff"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/meetings"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/memory"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/serve"
	"github.com/sriramvarun3/Memori/internal/cache"
)

// build information, overridden by the linker.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// secrets defines the names of the supported secret files that we load our
// secrets from.  Inexperienced windows users might have bad experience trying
// to create .env file with the notepad as it will battle for having the
// "txt" extension.  Let it have it.
var secrets = []string{".env", ".env.txt", "secrets.txt"}

func init() {
	base.Memori.Commands = []*base.Command{
		connect.CmdConnect,
		connect.CmdDisconnect,
		connect.CmdStatus,
		meetings.CmdMeetings,
		meetings.CmdMeeting,
		ask.CmdAsk,
		memory.CmdMemory,
		handoff.CmdHandoff,
		serve.CmdServe,
		apicfg.CmdConfig,
		cmdVersion,
	}
}

func main() {
	loadSecrets(secrets)

	base.Usage = mainUsage
	flag.Usage = mainUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		mainUsage()
	}

	base.CmdName = args[0]
	if args[0] == "help" {
		help.Help(os.Stdout, args[1:])
		base.Exit()
	}

	cmd, used := lookupCommand(base.Memori, args)
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "memori %s: unknown command\nRun 'memori help' for usage.\n", base.CmdName)
		base.SetExitStatus(base.SInvalidParameters)
		base.Exit()
	}
	base.CmdName = strings.Join(args[:used], " ")

	if err := invoke(cmd, args[used-1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			base.SetExitStatus(base.SHelpRequested)
		} else {
			fmt.Fprintf(os.Stderr, "memori %s: %s\n", base.CmdName, err)
			base.SetExitStatus(base.SGenericError)
		}
	}
	base.Exit()
}

// lookupCommand descends the command tree, returning the deepest matched
// runnable command and the number of args consumed (including the command
// names).
func lookupCommand(root *base.Command, args []string) (*base.Command, int) {
	cmd := root
	used := 0
	for used < len(args) {
		var next *base.Command
		for _, sub := range cmd.Commands {
			if sub.Name() == args[used] {
				next = sub
				break
			}
		}
		if next == nil {
			break
		}
		cmd = next
		used++
		if len(cmd.Commands) == 0 {
			break
		}
	}
	if cmd == root {
		return nil, 0
	}
	if !cmd.Runnable() {
		// group command invoked without a subcommand: print its usage.
		help.PrintUsage(os.Stderr, cmd)
		base.SetExitStatus(base.SHelpRequested)
		base.Exit()
	}
	return cmd, used
}

// invoke parses the command flags, initialises logging and tracing, and runs
// the command.
func invoke(cmd *base.Command, args []string) error {
	if cmd.CustomFlags {
		args = args[1:]
	} else {
		cfg.SetBaseFlags(&cmd.Flag, cmd.FlagMask)
		cmd.Flag.Usage = func() { cmd.Usage() }
		if err := cmd.Flag.Parse(args[1:]); err != nil {
			return err
		}
		args = cmd.Flag.Args()
	}

	if err := initLog(cfg.LogFile, cfg.Verbose); err != nil {
		return err
	}
	if cfg.TraceFile != "" {
		slog.Info("trace enabled", "file", cfg.TraceFile)
		trc := tracer.New(cfg.TraceFile)
		if err := trc.Start(); err != nil {
			return err
		}
		defer func() {
			if err := trc.End(); err != nil {
				slog.Error("failed to write the trace file", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cmd.RequireAuth && !authenticated(ctx) {
		base.SetExitStatus(base.SAuthError)
		return errors.New("not authenticated, run 'memori connect' first")
	}

	return cmd.Run(ctx, cmd, args)
}

// authenticated reports whether a usable credential is stored.
func authenticated(ctx context.Context) bool {
	mgr, err := cache.NewManager(cfg.CacheDir())
	if err != nil {
		return false
	}
	_, err = mgr.Token(ctx)
	return err == nil
}

// initLog directs the default logger to the log file, if requested, and
// enables debug level in verbose mode.
func initLog(filename string, verbose bool) error {
	var w io.Writer = os.Stderr
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open the log file: %w", err)
		}
		base.AtExit(func() { f.Close() })
		w = f
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func mainUsage() {
	help.PrintUsage(os.Stderr, base.Memori)
	base.SetExitStatus(base.SHelpRequested)
	base.Exit()
}

// loadSecrets load secrets from the files in secrets slice.
func loadSecrets(files []string) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}
