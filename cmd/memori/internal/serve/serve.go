// Package serve implements the MCP server command.
package serve

import (
	"context"
	"log/slog"
	"runtime/trace"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
	"github.com/sriramvarun3/Memori/internal/cache"
	"github.com/sriramvarun3/Memori/internal/mcpsrv"
)

var CmdServe = &base.Command{
	UsageLine: "memori serve",
	Short:     "run an MCP server over the local Memori state",
	Long: `
Serve runs a Model Context Protocol server over stdin/stdout, exposing the
saved memories, context handoffs and the cached meetings snapshot to a local
AI agent (for example, Claude Desktop).

The server is read-mostly: the only mutating tool is save_memory.  Meeting
data is served from the local snapshot; run 'memori meetings -refresh' to
update it.
`,
	FlagMask:   cfg.OmitAPIKeyFlag | cfg.OmitEndpoint | cfg.OmitConfigFlag,
	PrintFlags: true,
}

func init() {
	CmdServe.Run = runServe
}

func runServe(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "serve")
	defer task.End()

	mgr, err := cache.NewManager(cfg.CacheDir())
	if err != nil {
		base.SetExitStatus(base.SInitializationError)
		return err
	}
	srv := mcpsrv.New(mgr, slog.Default())
	if err := srv.Serve(ctx); err != nil {
		base.SetExitStatus(base.SApplicationError)
		return err
	}
	return nil
}
