package resources

import (
	"os"
	"strconv"
	"strings"
)

// memoryLimit returns the container memory limit in bytes, read from the
// cgroup filesystem. Returns 0 when no limit is set (unlimited, or a
// non-containerized environment). Adapted verbatim from the teacher's
// cgroup.go, which already handles both cgroup v2 and v1 layouts.
func memoryLimit() int64 {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			if v, err := strconv.ParseInt(limitStr, 10, 64); err == nil {
				return v
			}
		}
	}
	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if v, err := strconv.ParseInt(limitStr, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
