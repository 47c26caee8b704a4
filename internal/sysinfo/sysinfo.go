// Package sysinfo reports on-disk facts about a mirror tree: its size and
// the free space left on its volume. It uses gopsutil so the numbers are
// correct across platforms.
package sysinfo

import (
	"io/fs"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// TreeStats is the disk footprint of a directory tree.
type TreeStats struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// Tree walks dir and sums regular file sizes.
func Tree(dir string) (*TreeStats, error) {
	stats := &TreeStats{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			stats.Files++
			stats.Bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Volume returns usage of the filesystem holding dir.
func Volume(dir string) (*disk.UsageStat, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return disk.Usage(abs)
}
