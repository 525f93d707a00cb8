package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics collects counters for one or more extraction runs
type Metrics struct {
	mu sync.RWMutex

	// Entry metrics
	EntriesTotal  map[string]int64 // by entry type
	FailuresTotal map[string]int64 // by entry type
	SkippedTotal  int64
	BytesWritten  int64

	// Source metrics
	SourceBytesTotal map[string]int64 // by source kind
	SourceDurationNs map[string]int64 // by source kind
	SourceFetchTotal map[string]int64 // by source kind

	// Run metrics
	RunsTotal       int64
	RunDurationNs   int64
	StreamBytesRead int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		EntriesTotal:     make(map[string]int64),
		FailuresTotal:    make(map[string]int64),
		SourceBytesTotal: make(map[string]int64),
		SourceDurationNs: make(map[string]int64),
		SourceFetchTotal: make(map[string]int64),
	}
}

// RecordEntry records the outcome of a single archive entry
func (m *Metrics) RecordEntry(entryType string, bytes int64, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EntriesTotal[entryType]++
	m.BytesWritten += bytes
	if failed {
		m.FailuresTotal[entryType]++
	}
}

// RecordSkipped records an entry that was not applied to the filesystem
func (m *Metrics) RecordSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SkippedTotal++
}

// RecordSourceFetch records a remote archive download
func (m *Metrics) RecordSourceFetch(kind string, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SourceBytesTotal[kind] += bytes
	m.SourceFetchTotal[kind]++
	m.SourceDurationNs[kind] += duration.Nanoseconds()

	log.Debug().
		Str("source", kind).
		Int64("bytes", bytes).
		Dur("duration", duration).
		Msg("archive fetched")
}

// RecordRun records a finished extraction run
func (m *Metrics) RecordRun(streamBytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RunsTotal++
	m.StreamBytesRead += streamBytes
	m.RunDurationNs += duration.Nanoseconds()
}

// Snapshot returns the current counters keyed by metric name
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make(map[string]interface{})

	var entries, failures int64
	for entryType, count := range m.EntriesTotal {
		entries += count
		metrics["untar_entries_total{type=\""+entryType+"\"}"] = count
	}
	for entryType, count := range m.FailuresTotal {
		failures += count
		metrics["untar_entry_failures_total{type=\""+entryType+"\"}"] = count
	}
	for kind, bytes := range m.SourceBytesTotal {
		metrics["untar_source_bytes_total{source=\""+kind+"\"}"] = bytes
	}

	metrics["untar_entries_total"] = entries
	metrics["untar_entry_failures_total"] = failures
	metrics["untar_entries_skipped_total"] = m.SkippedTotal
	metrics["untar_bytes_written_total"] = m.BytesWritten
	metrics["untar_stream_bytes_read_total"] = m.StreamBytesRead
	metrics["untar_runs_total"] = m.RunsTotal
	metrics["untar_run_seconds_total"] = float64(m.RunDurationNs) / 1e9

	return metrics
}

// LogSummary logs a summary of current metrics
func (m *Metrics) LogSummary() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries, failures int64
	for _, count := range m.EntriesTotal {
		entries += count
	}
	for _, count := range m.FailuresTotal {
		failures += count
	}

	log.Info().
		Int64("entries", entries).
		Int64("failures", failures).
		Int64("skipped", m.SkippedTotal).
		Int64("bytes_written", m.BytesWritten).
		Int64("stream_bytes", m.StreamBytesRead).
		Dur("duration", time.Duration(m.RunDurationNs)).
		Msg("extraction summary")
}

// Global metrics instance
var GlobalMetrics = NewMetrics()

func RecordSourceFetch(kind string, bytes int64, duration time.Duration) {
	GlobalMetrics.RecordSourceFetch(kind, bytes, duration)
}

func LogMetricsSummary() {
	GlobalMetrics.LogSummary()
}
