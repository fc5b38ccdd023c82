package httpserver

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo describes the host the engine runs on.
type SystemInfo struct {
	OS            string   `json:"os"`
	Architecture  string   `json:"architecture"`
	Hostname      string   `json:"hostname"`
	Platform      string   `json:"platform,omitempty"`
	KernelVersion string   `json:"kernel_version,omitempty"`
	UpTime        uint64   `json:"uptime_seconds,omitempty"`
	CPUModel      string   `json:"cpu_model"`
	PhysicalCores int      `json:"physical_cores"`
	LogicalCores  int      `json:"logical_cores"`
	CPUFeatures   []string `json:"cpu_features,omitempty"`
	CPUUsage      float64  `json:"cpu_usage_percent"`
	MemoryTotal   uint64   `json:"memory_total"`
	MemoryUsed    uint64   `json:"memory_used"`
	MemoryUsage   float64  `json:"memory_usage_percent"`
	ProcessRSS    uint64   `json:"process_rss"`
	Goroutines    int      `json:"goroutines"`
	GoVersion     string   `json:"go_version"`
	AppUptime     float64  `json:"app_uptime_seconds"`
}

// simdFeatures are the CPU features relevant to block processing.
var simdFeatures = []struct {
	id   cpuid.FeatureID
	name string
}{
	{cpuid.SSE2, "sse2"},
	{cpuid.SSE4, "sse4.1"},
	{cpuid.AVX, "avx"},
	{cpuid.AVX2, "avx2"},
	{cpuid.FMA3, "fma3"},
	{cpuid.AVX512F, "avx512f"},
	{cpuid.ASIMD, "asimd"},
}

// getSystemInfo handles GET /api/v1/system. Probes that fail on the current
// platform are logged and left at their zero value.
func (s *Server) getSystemInfo(c echo.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := SystemInfo{
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		Hostname:      hostname,
		CPUModel:      cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  runtime.NumCPU(),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		AppUptime:     time.Since(s.startTime).Seconds(),
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			info.CPUFeatures = append(info.CPUFeatures, f.name)
		}
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
		info.UpTime = hostInfo.Uptime
	} else {
		s.logger.Debug("host info unavailable", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryUsage = vm.UsedPercent
	} else {
		s.logger.Debug("memory info unavailable", "error", err)
	}

	// Zero interval compares against the previous call, so it never blocks.
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		info.CPUUsage = pct[0]
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if m, err := proc.MemoryInfo(); err == nil && m != nil {
			info.ProcessRSS = m.RSS
		}
	}

	return c.JSON(http.StatusOK, info)
}
