//go:build windows

package evaluator

import "golang.org/x/sys/windows"

var qpcFreq int64

func init() {
	_ = windows.QueryPerformanceFrequency(&qpcFreq)
}

// hiresNow returns the performance counter in nanoseconds.
func hiresNow() int64 {
	var counter int64
	_ = windows.QueryPerformanceCounter(&counter)
	if qpcFreq == 0 {
		return 0
	}
	return counter/qpcFreq*1_000_000_000 + counter%qpcFreq*1_000_000_000/qpcFreq
}

// hiresSinceMs returns the elapsed milliseconds since startNano.
func hiresSinceMs(startNano int64) int64 {
	return (hiresNow() - startNano) / 1_000_000
}
