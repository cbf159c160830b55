package relocate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chuanzhoupan/goingest/internal/logger"
)

// ClearScratch removes ephemeral per-batch subdirectories under the
// shared sandbox mount, keeping the tools directory. Individual removal
// failures are logged and skipped.
func ClearScratch(hostCodePath string, log logger.Interface) error {
	entries, err := os.ReadDir(hostCodePath)
	if err != nil {
		return fmt.Errorf("failed to read scratch root %s: %w", hostCodePath, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "tools" {
			continue
		}
		p := filepath.Join(hostCodePath, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			log.Warn("failed to remove scratch dir", "path", p, "error", err)
			continue
		}
		log.Debug("removed scratch dir", "path", p)
	}
	return nil
}
