// Package apicfg implements operations on the API limits configuration
// file.
package apicfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

var CmdConfig = &base.Command{
	UsageLine: "memori config",
	Short:     "API limits configuration",
	Long: `
Config command allows to perform different operations on the API limits
configuration file.
`,
	Commands: []*base.Command{
		CmdConfigNew,
		CmdConfigCheck,
	},
}

var ErrConfigInvalid = errors.New("config validation failed")

// Limits sets the boundaries of the traffic towards the Granola MCP
// endpoint.
type Limits struct {
	// PerMinute is the maximum number of requests per minute.
	PerMinute int `toml:"per_minute" validate:"gte=1,lte=600"`
	// Burst is the allowed burst of requests.
	Burst int `toml:"burst" validate:"gte=1,lte=10"`
	// Timeout is the per-request HTTP timeout.
	Timeout duration `toml:"timeout" validate:"required"`
}

// DefLimits are the default limits, matching the MCP client defaults.
var DefLimits = Limits{
	PerMinute: 300,
	Burst:     3,
	Timeout:   duration{60 * time.Second},
}

// duration wraps time.Duration for TOML round-tripping in the "1m30s" form.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validate = validator.New()

// Load reads, parses and validates the config file.
func Load(filename string) (Limits, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Limits{}, err
	}
	defer f.Close()
	return apply(f)
}

// apply reads the limits from r and validates them.
func apply(r io.Reader) (Limits, error) {
	lim := DefLimits
	md, err := toml.NewDecoder(r).Decode(&lim)
	if err != nil {
		return Limits{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Limits{}, fmt.Errorf("%w: unknown keys: %v", ErrConfigInvalid, undecoded)
	}
	if err := validate.Struct(lim); err != nil {
		return Limits{}, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}
	return lim, nil
}

// Save writes the limits to the file in TOML format.
func Save(filename string, lim Limits) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(lim)
}

// Limiter converts the limits to a token bucket limiter.
func (l Limits) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(l.PerMinute)/60.0), l.Burst)
}
