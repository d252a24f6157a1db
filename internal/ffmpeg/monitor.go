package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage for a running transcode process.
type ProcessStats struct {
	PID            int32         `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	Runtime        time.Duration `json:"runtime"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a subordinate process.
type ProcessMonitor struct {
	pid       int32
	interval  time.Duration
	startedAt time.Time

	mu      sync.RWMutex
	stats   ProcessStats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	return &ProcessMonitor{
		pid:       int32(pid),
		interval:  2 * time.Second,
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// WithInterval sets the sampling interval.
func (m *ProcessMonitor) WithInterval(interval time.Duration) *ProcessMonitor {
	if interval > 0 {
		m.interval = interval
	}
	return m
}

// Start begins sampling in a background goroutine.
func (m *ProcessMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.loop()
}

// Stop ends sampling and waits for the sampler to exit.
func (m *ProcessMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh
}

// Stats returns the latest sample.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *ProcessMonitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ProcessMonitor) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	proc, err := process.NewProcessWithContext(ctx, m.pid)
	if err != nil {
		// Process already exited; keep the last sample.
		return
	}

	stats := ProcessStats{
		PID:         m.pid,
		Runtime:     time.Since(m.startedAt),
		LastUpdated: time.Now(),
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
	}

	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}
