package apicfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdConfigCheck = &base.Command{
	UsageLine: "memori config check",
	Short:     "validate the existing config for errors",
	Long: `
Allows to check the config for errors and invalid values.

Example:

    memori config check mylimits.toml

It will check for unknown keys, and also ensure that values are within the
allowed boundaries.
`,
	FlagMask: cfg.OmitAll,
}

func init() {
	CmdConfigCheck.Run = runConfigCheck
}

func runConfigCheck(ctx context.Context, cmd *base.Command, args []string) error {
	if len(args) == 0 || args[0] == "" {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("config filename must be specified")
	}
	filename := args[0]
	if _, err := Load(filename); err != nil {
		base.SetExitStatus(base.SUserError)
		return fmt.Errorf("config file %q not OK: %s", filename, err)
	}
	fmt.Printf("Config file %q: OK\n", filename)
	return nil
}
