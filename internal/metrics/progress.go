package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressTracker turns element and byte counts into rates and an ETA
type ProgressTracker struct {
	total     int64
	startTime time.Time
}

// NewProgressTracker starts tracking now. total is the expected number of
// elements, or 0 if unknown.
func NewProgressTracker(total int64) *ProgressTracker {
	return &ProgressTracker{total: total, startTime: time.Now()}
}

// Progress holds current progress information
type Progress struct {
	Current    int64
	Total      int64
	Bytes      int64
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // elements per second
	ByteRate   float64 // bytes per second
}

// Calculate returns progress for the given element and byte counts
func (p *ProgressTracker) Calculate(current, bytes int64) Progress {
	return p.calculateAt(current, bytes, time.Since(p.startTime))
}

func (p *ProgressTracker) calculateAt(current, bytes int64, elapsed time.Duration) Progress {
	prog := Progress{
		Current: current,
		Total:   p.total,
		Bytes:   bytes,
		Elapsed: elapsed.Round(time.Second),
	}

	if secs := elapsed.Seconds(); secs > 0 {
		prog.Throughput = float64(current) / secs
		prog.ByteRate = float64(bytes) / secs
	}

	if p.total > 0 && current > 0 {
		prog.Percentage = math.Min(float64(current)/float64(p.total)*100, 100)
		if current < p.total && prog.Throughput > 0 {
			remaining := float64(p.total-current) / prog.Throughput
			prog.ETA = (time.Duration(remaining) * time.Second).Round(time.Second)
		}
	}
	return prog
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", itemsPerSec)
}

// FormatRate formats bytes per second
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
