// Package common provides shared utilities for command implementations.
package common

import (
	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/logger"
)

// CommandDeps holds common dependencies for all commands.
type CommandDeps struct {
	Logger logger.Interface
	Config *config.Config
}

// Validate ensures all required dependencies are present.
func (d CommandDeps) Validate() error {
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	if d.Config == nil {
		return ErrConfigRequired
	}
	return nil
}
