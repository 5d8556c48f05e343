// Package cfg contains common configuration variables.
package cfg

import (
	"flag"
	"os"

	"github.com/rusq/osenv/v2"

	"github.com/sriramvarun3/Memori/mcp"
)

var (
	TraceFile string
	LogFile   string
	Verbose   bool

	// LocalCacheDir overrides the default cache directory.
	LocalCacheDir string
	// Endpoint is the Granola MCP endpoint URL.
	Endpoint string
	// ConfigFile is an optional file with API limits overrides.
	ConfigFile string
	// OpenAIKey enables conversation compression.
	OpenAIKey string
)

type FlagMask int

const (
	DefaultFlags   FlagMask = 0
	OmitCacheDir   FlagMask = 1 << iota
	OmitEndpoint
	OmitConfigFlag
	OmitAPIKeyFlag

	OmitAll = OmitCacheDir |
		OmitEndpoint |
		OmitConfigFlag |
		OmitAPIKeyFlag
)

// SetBaseFlags sets base flags.
func SetBaseFlags(fs *flag.FlagSet, mask FlagMask) {
	fs.StringVar(&TraceFile, "trace", os.Getenv("TRACE_FILE"), "trace `filename`")
	fs.StringVar(&LogFile, "log", os.Getenv("LOG_FILE"), "log `file`, if not specified, messages are printed to STDERR")
	fs.BoolVar(&Verbose, "v", osenv.Value("DEBUG", false), "verbose messages")

	if mask&OmitCacheDir == 0 {
		fs.StringVar(&LocalCacheDir, "cache-dir", osenv.Value("MEMORI_CACHE_DIR", ""), "cache `directory` location")
	}
	if mask&OmitEndpoint == 0 {
		fs.StringVar(&Endpoint, "endpoint", osenv.Value("MEMORI_ENDPOINT", mcp.DefaultEndpoint), "Granola MCP endpoint `URL`")
	}
	if mask&OmitConfigFlag == 0 {
		fs.StringVar(&ConfigFile, "api-config", "", "configuration `file` with API limits overrides.\nYou can generate one with default values with 'memori config new'")
	}
	if mask&OmitAPIKeyFlag == 0 {
		fs.StringVar(&OpenAIKey, "openai-key", osenv.Secret("OPENAI_API_KEY", ""), "OpenAI API `key` used for conversation compression\n(environment: OPENAI_API_KEY)")
	}
}
