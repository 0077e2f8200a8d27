package netstream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Process-wide TX/RX byte counters, shared by every Net instance regardless
// of which stream they belong to. Mirrors the original's static
// req_bitrate__/tx_bitrate__/rx_sample_count__/tx_sample_count__ atomics
// feeding a single process-global Net::getStatistics().
var (
	txBytesTotal atomic.Int64
	rxBytesTotal atomic.Int64

	statsMu     sync.Mutex
	lastSampled time.Time
)

func recordTX(n int64) {
	if n > 0 {
		txBytesTotal.Add(n)
	}
}

func recordRX(n int64) {
	if n > 0 {
		rxBytesTotal.Add(n)
	}
}

// NetStats reports the sent/received throughput, in megabits per second,
// observed since the last call to GetStatistics.
type NetStats struct {
	RxRateMbps float64
	TxRateMbps float64
}

// GetStatistics samples and resets the process-wide TX/RX counters,
// returning the throughput averaged over the interval since the previous
// call. The first call after process start reports against a one-second
// baseline. Mirrors the original's static Net::getStatistics().
func GetStatistics() NetStats {
	statsMu.Lock()
	defer statsMu.Unlock()

	now := time.Now()
	elapsed := 1.0
	if !lastSampled.IsZero() {
		if d := now.Sub(lastSampled).Seconds(); d > 0 {
			elapsed = d
		}
	}
	lastSampled = now

	tx := txBytesTotal.Swap(0)
	rx := rxBytesTotal.Swap(0)

	return NetStats{
		RxRateMbps: float64(rx*8) / elapsed / 1e6,
		TxRateMbps: float64(tx*8) / elapsed / 1e6,
	}
}
