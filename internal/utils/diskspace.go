package utils

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/shirou/gopsutil/v4/disk"
)

// ErrInsufficientSpace is returned when a volume is below its free-space floor.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// DiskUsage summarizes the volume holding a path.
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage reports usage for the volume holding path.
func GetDiskUsage(path string) (*DiskUsage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return &DiskUsage{
		Path:        path,
		TotalBytes:  stat.Total,
		FreeBytes:   stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}

// EnsureFreeSpace returns ErrInsufficientSpace when fewer than minBytes are
// free on the volume holding path. A zero floor disables the check.
func EnsureFreeSpace(path string, minBytes uint64) error {
	if minBytes == 0 {
		return nil
	}
	usage, err := GetDiskUsage(path)
	if err != nil {
		return err
	}
	if usage.FreeBytes < minBytes {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrInsufficientSpace, path, usage.FreeBytes, minBytes)
	}
	return nil
}

// IsNoSpace reports whether err came from a full volume.
func IsNoSpace(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, ErrInsufficientSpace)
}
