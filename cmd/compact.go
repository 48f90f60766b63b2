package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/keysafe/internal/config"
)

// Compact compacts the database to reclaim unused space
func Compact(ctx context.Context, cfg *config.Config) {
	s := Open(ctx, cfg, "")
	defer s.Close()

	// Get file size before
	sizeBefore, err := fileSize(cfg.Storage.Path)
	if err != nil {
		HandleError(err)
	}

	if err := s.KeySafe.Compact(); err != nil {
		HandleError(err)
	}

	// Get file size after
	sizeAfter, err := fileSize(cfg.Storage.Path)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
