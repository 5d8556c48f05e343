// Package bootstrap contains some initialisation functions that are shared
// between the top level commands.
package bootstrap

import (
	"fmt"
	"log/slog"

	memori "github.com/sriramvarun3/Memori"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/apicfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/cfg"
	"github.com/sriramvarun3/Memori/cmd/memori/internal/golang/base"
)

// Service constructs the memori service from the common configuration
// flags.
func Service() (*memori.Service, error) {
	opts := memori.Options{
		CacheDir:  cfg.CacheDir(),
		Endpoint:  cfg.Endpoint,
		OpenAIKey: cfg.OpenAIKey,
		Logger:    slog.Default(),
	}
	if cfg.ConfigFile != "" {
		lim, err := apicfg.Load(cfg.ConfigFile)
		if err != nil {
			base.SetExitStatus(base.SInvalidParameters)
			return nil, fmt.Errorf("API limits config: %w", err)
		}
		opts.Limiter = lim.Limiter()
		opts.Timeout = lim.Timeout.Duration
	}
	svc, err := memori.New(opts)
	if err != nil {
		base.SetExitStatus(base.SInitializationError)
		return nil, err
	}
	return svc, nil
}
