package apicfg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdConfigNew = &base.Command{
	UsageLine: "memori config new",
	Short:     "creates a new API config with the default values",
	Long: `
Creates a new API limits configuration file containing default values. You
will need to specify the filename, for example:

    memori config new mylimits.toml

If the extension is omitted, ".toml" is automatically appended to the
filename.
`,
	FlagMask:   cfg.OmitAll,
	PrintFlags: true,
}

var fNewOverride = CmdConfigNew.Flag.Bool("y", false, "confirm the overwrite of the existing config")

func init() {
	CmdConfigNew.Run = runConfigNew
}

func runConfigNew(ctx context.Context, cmd *base.Command, args []string) error {
	_, task := trace.NewTask(ctx, "runConfigNew")
	defer task.End()

	if len(args) == 0 {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("config file name must be specified")
	}

	filename := maybeFixExt(args[0])

	if !shouldOverwrite(filename, *fNewOverride) {
		base.SetExitStatus(base.SUserError)
		return fmt.Errorf("file or directory exists: %q, use -y flag to overwrite (will not overwrite directory)", filename)
	}

	if err := Save(filename, DefLimits); err != nil {
		base.SetExitStatus(base.SApplicationError)
		return fmt.Errorf("error writing the API limits config %q: %w", filename, err)
	}

	fmt.Printf("Your new API limits config is ready: %q\n", filename)
	return nil
}

// shouldOverwrite returns true if the file can be overwritten.  If override
// is true and the file exists and not a directory, it will return true.
func shouldOverwrite(filename string, override bool) bool {
	fi, err := os.Stat(filename)
	if fi != nil && fi.IsDir() {
		return false
	}
	return err != nil || override
}

// maybeFixExt appends the .toml extension unless the filename already has
// it.
func maybeFixExt(filename string) string {
	if ext := filepath.Ext(filename); ext != ".toml" {
		return filename + ".toml"
	}
	return filename
}
