// Package pool implements the pool command for managing the sandbox
// pool independently of a capture run.
package pool

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdcommon "github.com/chuanzhoupan/goingest/cmd/common"
	"github.com/chuanzhoupan/goingest/internal/config"
	"github.com/chuanzhoupan/goingest/internal/logger"
	"github.com/chuanzhoupan/goingest/internal/sandbox"
)

// Command returns the pool command for use in the root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage the sandbox pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(prepareCommand())
	cmd.AddCommand(rmCommand())
	return cmd
}

func prepareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Create and start every sandbox in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			sbPool, log, err := buildPool()
			if err != nil {
				return err
			}

			names, err := sbPool.Prepare(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("pool ready", "count", len(names))
			return nil
		},
	}
}

func rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm",
		Short: "Force-remove every sandbox in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			sbPool, log, err := buildPool()
			if err != nil {
				return err
			}

			if err := sbPool.Remove(cmd.Context()); err != nil {
				return fmt.Errorf("failed to remove sandbox pool: %w", err)
			}
			log.Info("sandbox pool removed")
			return nil
		},
	}
}

func buildPool() (*sandbox.Pool, logger.Interface, error) {
	deps, err := cmdcommon.NewCommandDeps()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	prov, err := sandbox.NewDockerProvisioner(deps.Logger)
	if err != nil {
		return nil, nil, err
	}

	identity := config.HostIdentityFromEnv()
	return sandbox.NewPool(deps.Config.Pool, identity, prov, deps.Logger), deps.Logger, nil
}
