package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is the self-inspection snapshot exposed by the health endpoint.
type ProcessStats struct {
	PID        int32     `json:"pid"`
	Status     string    `json:"status"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// MonitoringManager samples the server process on a fixed interval so that
// health checks never pay for a gopsutil call.
type MonitoringManager struct {
	log         *slog.Logger
	interval    time.Duration
	mu          sync.RWMutex
	latestStats ProcessStats
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	return &MonitoringManager{log: log, interval: interval}
}

// Run samples until ctx is done. It is supervised like any other worker.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	mm.sample(p)

	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return nil
		case <-ticker.C:
			mm.sample(p)
		}
	}
}

func (mm *MonitoringManager) sample(p *process.Process) {
	stats := ProcessStats{PID: p.Pid, SampledAt: time.Now().UTC()}

	if memInfo, err := p.MemoryInfo(); err == nil {
		stats.RSSBytes = memInfo.RSS
	} else {
		mm.log.Debug("Error while finding process ram usage", "error", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	} else {
		mm.log.Debug("Error while finding process cpu usage", "error", err)
	}
	if status, err := p.Status(); err == nil {
		stats.Status = status
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.Goroutines = runtime.NumGoroutine()

	mm.mu.Lock()
	mm.latestStats = stats
	mm.mu.Unlock()
}

func (mm *MonitoringManager) GetLatest() ProcessStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
