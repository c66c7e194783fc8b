package pipeline

import "time"

// Measure stamps the elapsed time since start into m and bumps the call
// count. Call it at each adapter boundary:
//
//	start := time.Now()
//	defer pipeline.Measure(start, &result.Metrics)
func Measure(start time.Time, m *Metrics) {
	m.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000.0
	if m.CallCount == 0 {
		m.CallCount = 1
	}
}
