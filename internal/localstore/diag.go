package localstore

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskStats reports filesystem usage for the directory holding the local
// store, surfaced in the client's status output.
type DiskStats struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage returns usage statistics for the given directory.
func DiskUsage(dir string) (*DiskStats, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return nil, fmt.Errorf("disk usage for %s: %w", dir, err)
	}
	return &DiskStats{
		Path:        dir,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}
