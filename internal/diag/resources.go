package diag

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ResourceSnapshot captures host capacity at diagnosis time. Fields that
// could not be read are left at zero rather than failing the snapshot.
type ResourceSnapshot struct {
	MemTotalMB     int64
	MemAvailableMB int64
	Load1          float64
	Load5          float64
	Load15         float64
	DiskTotalGB    float64
	DiskFreeGB     float64
	GPU            string // first line of nvidia-smi query output, empty when absent
}

// Snapshot reads memory and load from /proc, disk capacity for the root
// filesystem, and GPU identity when an NVIDIA driver is installed.
func Snapshot(ctx context.Context) ResourceSnapshot {
	var rs ResourceSnapshot
	rs.MemTotalMB, rs.MemAvailableMB = readMeminfo("/proc/meminfo")
	rs.Load1, rs.Load5, rs.Load15 = readLoadavg("/proc/loadavg")

	var st syscall.Statfs_t
	if err := syscall.Statfs("/", &st); err == nil {
		bs := float64(st.Bsize)
		rs.DiskTotalGB = float64(st.Blocks) * bs / (1 << 30)
		rs.DiskFreeGB = float64(st.Bavail) * bs / (1 << 30)
	}

	rs.GPU = queryGPU(ctx)
	return rs
}

func readMeminfo(path string) (totalMB, availMB int64) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalMB = kb / 1024
		case "MemAvailable:":
			availMB = kb / 1024
		}
	}
	return totalMB, availMB
}

func readLoadavg(path string) (l1, l5, l15 float64) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15
}

func queryGPU(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total", "--format=csv,noheader").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(first)
}

// String renders the snapshot as a one-line summary for status output.
func (rs ResourceSnapshot) String() string {
	s := fmt.Sprintf("mem %d/%d MB free, load %.2f/%.2f/%.2f, disk %.1f/%.1f GB free",
		rs.MemAvailableMB, rs.MemTotalMB, rs.Load1, rs.Load5, rs.Load15,
		rs.DiskFreeGB, rs.DiskTotalGB)
	if rs.GPU != "" {
		s += ", gpu " + rs.GPU
	}
	return s
}
