package handler

import (
	"runtime"
	"sync/atomic"
	"time"

	"tg-sentinel/internal/logger"
)

// processing statistics
var (
	totalMessagesProcessed int64
	totalCallbackQueries   int64
	totalErrors            int64
	startTime              = time.Now()

	// bounds concurrent pipeline goroutines
	messageProcessingSemaphore = make(chan struct{}, 64)
)

func incrementCounter(counter *int64) {
	atomic.AddInt64(counter, 1)
}

// GetProcessingStats returns a snapshot of the handler counters.
func GetProcessingStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	return map[string]interface{}{
		"uptime_seconds":          int64(uptime.Seconds()),
		"total_messages":          atomic.LoadInt64(&totalMessagesProcessed),
		"total_callback_queries":  atomic.LoadInt64(&totalCallbackQueries),
		"total_errors":            atomic.LoadInt64(&totalErrors),
		"active_handlers":         len(messageProcessingSemaphore),
		"max_concurrent_messages": cap(messageProcessingSemaphore),
		"memory_usage_mb":         bToMb(m.Alloc),
		"goroutines":              runtime.NumGoroutine(),
	}
}

// LogProcessingStats periodically logs the processing counters.
func LogProcessingStats() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		logger.Infof("Processing stats: %+v", GetProcessingStats())
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
