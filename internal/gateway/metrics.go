package gateway

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// SystemMetrics is the payload of the periodic "metrics" envelope and
// of GET /api/metrics: host load, process memory, the engine's filter
// compute latency pulled from Redis, and the gateway's own pipeline
// percentiles.
type SystemMetrics struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPULoad5    float64 `json:"cpu_load_5"`
	CPULoad15   float64 `json:"cpu_load_15"`
	CPUPercent  float64 `json:"cpu_percent"`
	CPUCores    int     `json:"cpu_cores"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
	FilterMs    float64 `json:"filter_compute_ms"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	TS          string  `json:"ts"`
}

// Published by the engine's consumer loop as an EWMA in ms.
const filterLatencyKey = "metrics:alfengine:filter_compute_ms"

// prevCPU carries the previous /proc/stat counters between collection
// ticks; CPU% is the idle delta over the total delta.
var prevCPU struct {
	idle  uint64
	total uint64
}

// CollectMetrics gathers one SystemMetrics sample. Linux-only fields
// stay zero on other platforms.
func CollectMetrics(start time.Time) SystemMetrics {
	m := SystemMetrics{
		Goroutines: runtime.NumGoroutine(),
		CPUCores:   runtime.NumCPU(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	if idle, total, ok := cpuCounters(); ok {
		if prevCPU.total > 0 && total > prevCPU.total {
			dIdle := float64(idle - prevCPU.idle)
			dTotal := float64(total - prevCPU.total)
			m.CPUPercent = (1.0 - dIdle/dTotal) * 100.0
		}
		prevCPU.idle, prevCPU.total = idle, total
	}

	m.CPULoad1, m.CPULoad5, m.CPULoad15 = loadAverages()

	if usedKB, totalKB := memUsage(); totalKB > 0 {
		m.MemTotalMB = float64(totalKB) / 1024
		m.MemUsedMB = float64(usedKB) / 1024
		m.MemPercent = float64(usedKB) / float64(totalKB) * 100
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / (1 << 20)
	m.SysMB = float64(ms.Sys) / (1 << 20)
	m.GCRuns = ms.NumGC

	return m
}

// cpuCounters reads the aggregate cpu line of /proc/stat and returns
// the idle and total jiffy counters.
func cpuCounters() (idle, total uint64, ok bool) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return 0, 0, false
		}
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				continue
			}
			total += v
			if i == 3 { // idle column
				idle = v
			}
		}
		return idle, total, true
	}
	return 0, 0, false
}

func loadAverages() (l1, l5, l15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return
}

// memUsage returns used and total memory in KB from /proc/meminfo,
// counting MemAvailable (not MemFree) as reclaimable.
func memUsage() (usedKB, totalKB uint64) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	var available uint64
	for _, line := range strings.Split(string(data), "\n") {
		var target *uint64
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			target = &totalKB
		case strings.HasPrefix(line, "MemAvailable:"):
			target = &available
		default:
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			*target, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	if totalKB < available {
		return 0, totalKB
	}
	return totalKB - available, totalKB
}

// ReadFilterLatency fetches the engine's published compute-latency
// EWMA. Returns false when the engine has not published yet or Redis
// is unreachable.
func ReadFilterLatency(ctx context.Context, rdb *goredis.Client) (float64, bool) {
	if rdb == nil {
		return 0, false
	}
	cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	val, err := rdb.Get(cctx, filterLatencyKey).Result()
	if err != nil {
		return 0, false
	}
	ms, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// TFLabel renders a timeframe in seconds as "30s" / "15m" / "4h".
func TFLabel(tf int) string {
	switch {
	case tf < 60:
		return fmt.Sprintf("%ds", tf)
	case tf < 3600:
		return fmt.Sprintf("%dm", tf/60)
	default:
		return fmt.Sprintf("%dh", tf/3600)
	}
}
