package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics holds current system metrics snapshot
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // can exceed 100% on multi-core
	ProcessRSS        uint64
	IOWaitPercent     float64
	MemoryUsed        uint64
	MemoryPercent     float64
	DiskReadBps       float64
	DiskWriteBps      float64
	Timestamp         time.Time
}

// ProgressFunc reports how far a dump has got
type ProgressFunc func() (elements, bytes int64)

// Collector periodically logs system metrics and, when given a progress
// function, dump progress.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	progress ProgressFunc
	tracker  *ProgressTracker

	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	lastCPUTimes  cpu.TimesStat
	hasCPUTimes   bool

	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// Option configures a Collector
type Option func(*Collector)

// WithProgress adds a dump progress line to every sample. total is the
// expected number of elements, or 0 if unknown.
func WithProgress(total int64, fn ProgressFunc) Option {
	return func(c *Collector) {
		c.progress = fn
		c.tracker = NewProgressTracker(total)
	}
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, logger *zap.Logger, opts ...Option) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	c := &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the disk and CPU baselines
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
			c.logProgress()
		}
	}
}

// GetMetrics returns the last collected metrics
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	metrics := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		metrics.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			metrics.ProcessCPUPercent = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			metrics.ProcessRSS = info.RSS
		}
	}
	metrics.IOWaitPercent = c.calculateIOWait()

	if vmem, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsed = vmem.Used
	}
	metrics.DiskReadBps, metrics.DiskWriteBps = c.calculateDiskRates()

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", round1(metrics.CPUPercent)),
		zap.Float64("proc_cpu", round1(metrics.ProcessCPUPercent)),
		zap.String("proc_rss", humanize.IBytes(metrics.ProcessRSS)),
		zap.Float64("iowait", round1(metrics.IOWaitPercent)),
		zap.Float64("mem_pct", round1(metrics.MemoryPercent)),
		zap.String("mem_used", humanize.IBytes(metrics.MemoryUsed)),
		zap.String("disk_r", FormatRate(metrics.DiskReadBps)),
		zap.String("disk_w", FormatRate(metrics.DiskWriteBps)),
	)
}

func (c *Collector) logProgress() {
	if c.progress == nil {
		return
	}
	elements, bytes := c.progress()
	p := c.tracker.Calculate(elements, bytes)

	fields := []zap.Field{
		zap.String("elements", humanize.Comma(p.Current)),
		zap.String("rate", FormatThroughput(p.Throughput)),
		zap.String("written", humanize.Bytes(uint64(p.Bytes))),
		zap.String("write_rate", FormatRate(p.ByteRate)),
		zap.Duration("elapsed", p.Elapsed),
	}
	if p.Total > 0 {
		fields = append(fields,
			zap.Float64("pct", round1(p.Percentage)),
			zap.String("eta", FormatETA(p.ETA)),
		)
	}
	c.logger.Info("Dump progress", fields...)
}

// calculateIOWait returns the share of CPU time spent waiting on I/O since
// the previous call
func (c *Collector) calculateIOWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	current := times[0]

	if !c.hasCPUTimes {
		c.lastCPUTimes = current
		c.hasCPUTimes = true
		return 0
	}

	last := c.lastCPUTimes
	totalDelta := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)
	iowaitDelta := current.Iowait - last.Iowait
	c.lastCPUTimes = current

	if totalDelta <= 0 {
		return 0
	}
	return iowaitDelta / totalDelta * 100
}

// calculateDiskRates returns read and write bytes per second across all
// disks since the previous call
func (c *Collector) calculateDiskRates() (readBps, writeBps float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}
	now := time.Now()

	defer func() {
		c.lastDiskStats = counters
		c.lastDiskTime = now
	}()

	if c.lastDiskStats == nil {
		return 0, 0
	}
	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, counter := range counters {
		last, ok := c.lastDiskStats[name]
		if !ok {
			continue
		}
		// counters can wrap
		if counter.ReadBytes >= last.ReadBytes {
			readDelta += counter.ReadBytes - last.ReadBytes
		}
		if counter.WriteBytes >= last.WriteBytes {
			writeDelta += counter.WriteBytes - last.WriteBytes
		}
	}
	return float64(readDelta) / elapsed, float64(writeDelta) / elapsed
}
