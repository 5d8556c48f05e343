// Package ask implements the grounded query command.
package ask

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/trace"
	"strings"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/bootstrap"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdAsk = &base.Command{
	UsageLine: "memori ask [flags] <query>",
	Short:     "ground a query in your meeting context",
	Long: `
Ask retrieves meeting context relevant to the query from Granola and prints a
grounded prompt, ready to be pasted into an AI chat.

The query may be given as multiple arguments; they are joined with spaces:

    memori ask what did we decide about the beta launch

If the stored credential has expired, the browser authorization flow is run
once and the query is retried.
`,
	FlagMask:    cfg.OmitAPIKeyFlag,
	PrintFlags:  true,
	RequireAuth: true,
}

var (
	fRaw  = CmdAsk.Flag.Bool("raw", false, "print the retrieved context only, without the prompt envelope")
	fJSON = CmdAsk.Flag.Bool("json", false, "output the result as JSON")
)

func init() {
	CmdAsk.Run = runAsk
}

func runAsk(ctx context.Context, cmd *base.Command, args []string) error {
	ctx, task := trace.NewTask(ctx, "ask")
	defer task.End()

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("query must be specified")
	}
	svc, err := bootstrap.Service()
	if err != nil {
		return err
	}

	if *fRaw {
		res := svc.Ask(ctx, query)
		if res.Err != "" {
			base.SetExitStatus(base.SApplicationError)
			return errors.New(res.Err)
		}
		return output(res, res.ContextText)
	}

	res := svc.GroundedPrompt(ctx, query)
	if res.Err != "" {
		base.SetExitStatus(base.SApplicationError)
		return errors.New(res.Err)
	}
	return output(res, res.Prompt)
}

func output(v any, text string) error {
	if *fJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
