// Package connect implements the authentication commands.
package connect

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"

	"github.com/fatih/color"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/bootstrap"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdConnect = &base.Command{
	UsageLine: "memori connect",
	Short:     "authenticate with the Granola MCP server",
	Long: `
Connect runs the OAuth authorization flow against the Granola MCP server.

A browser window is opened for you to sign in; once you approve the request,
the credential is stored locally and all other commands can use it.
`,
	FlagMask:   cfg.OmitAPIKeyFlag,
	PrintFlags: true,
}

var CmdDisconnect = &base.Command{
	UsageLine: "memori disconnect",
	Short:     "forget the stored Granola credential",
	Long: `
Disconnect removes the locally stored Granola credential.  It does not revoke
the grant on the server.
`,
	FlagMask:   cfg.OmitAPIKeyFlag | cfg.OmitEndpoint | cfg.OmitConfigFlag,
	PrintFlags: true,
}

var CmdStatus = &base.Command{
	UsageLine: "memori status",
	Short:     "show the authentication status",
	Long: `
Status reports whether a usable Granola credential is stored.  No network
requests are made.
`,
	FlagMask:   cfg.OmitAPIKeyFlag | cfg.OmitEndpoint | cfg.OmitConfigFlag,
	PrintFlags: true,
}

var fDisconnectYes = CmdDisconnect.Flag.Bool("y", false, "answer yes to all questions")

// yesNo is a seam for tests.
var yesNo = base.YesNo

func init() {
	CmdConnect.Run = runConnect
	CmdDisconnect.Run = runDisconnect
	CmdStatus.Run = runStatus
}

func runConnect(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "connect")
	defer task.End()

	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	if st := svc.CheckAuth(ctx); st.Authenticated {
		fmt.Println("Already connected.  Run 'memori disconnect' first to reauthenticate.")
		return nil
	}
	fmt.Println("Opening the browser to sign in to Granola...")
	if res := svc.Authenticate(ctx); !res.Success {
		base.SetExitStatus(base.SAuthError)
		return errors.New(res.Err)
	}
	color.Green("Connected.")
	return nil
}

func runDisconnect(ctx context.Context, cmd *base.Command, args []string) error {
	if !*fDisconnectYes && !yesNo("This will forget the stored Granola credential") {
		base.SetExitStatus(base.SNoError)
		return base.ErrOpCancelled
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	if res := svc.Disconnect(ctx); !res.Success {
		base.SetExitStatus(base.SCacheError)
		return errors.New(res.Err)
	}
	fmt.Println("Disconnected.")
	return nil
}

func runStatus(ctx context.Context, cmd *base.Command, args []string) error {
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}
	if st := svc.CheckAuth(ctx); st.Authenticated {
		color.Green("Connected.")
	} else {
		color.Yellow("Not connected.  Run 'memori connect' to authenticate.")
	}
	return nil
}
