package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
)

// Hard links only work within a single filesystem. Probing with a real
// link up front catches cross-device setups (say, a local SSD source and
// an NFS target) before we fail on every single shard.
func hardLinkSupported(sourceDir, targetDir string, files []shardFile) (bool, error) {
	if len(files) == 0 {
		return true, nil
	}

	var (
		src   = filepath.Join(sourceDir, files[0].name)
		probe = filepath.Join(targetDir, fmt.Sprintf(".linkprobe.%s", uuid.NewString()[:8]))
	)
	err := os.Link(src, probe)
	if err == nil {
		os.Remove(probe)
		return true, nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return false, nil
	}
	return false, fmt.Errorf("probing hard link support: %w", err)
}

func logWarningIfHardLinksUnsupported(
	logger *slog.Logger,
	sourceDir, targetDir string,
	files []shardFile,
) error {
	supported, err := hardLinkSupported(sourceDir, targetDir, files)
	if err != nil {
		return fmt.Errorf("failed to check hard link support: %w", err)
	}

	if !supported {
		logger.Warn(
			"source and target directories are on different filesystems, hard links will fail. drop -hard-link to copy file contents instead",
		)
	}

	return nil
}
