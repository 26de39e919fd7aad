package store

import (
	"path/filepath"
	"syscall"
)

// diskQuota reports the free space available on the filesystem backing
// path, used as the "host-provided ceiling" half of EstimateUsage. No
// library in the retrieval pack wraps statfs, so this stays on the
// standard syscall package (see DESIGN.md).
func diskQuota(path string) int64 {
	if path == ":memory:" {
		return 0
	}
	dir := filepath.Dir(path)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0
	}
	return int64(stat.Bavail) * int64(stat.Bsize)
}
