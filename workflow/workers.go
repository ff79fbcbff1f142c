package workflow

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/plansum/errors"
)

const (
	// memoryPerLocalWorker is the memory a concurrent local inference needs, in GB.
	memoryPerLocalWorker = 5.0
	// memoryBuffer is kept back for the rest of the system, in GB.
	memoryBuffer = 2.0
	// maxRecommendedWorkers caps the recommendation.
	maxRecommendedWorkers = 10
)

const bytesPerGB = 1024 * 1024 * 1024

// getMemoryStats returns total and available memory in bytes.
var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// RecommendWorkers returns a safe worker count for local inference given
// the available memory in GB. Always at least one.
func RecommendWorkers(availableGB float64) int {
	if availableGB < memoryBuffer {
		return 1
	}
	recommended := int((availableGB - memoryBuffer) / memoryPerLocalWorker)
	if recommended < 1 {
		return 1
	}
	if recommended > maxRecommendedWorkers {
		return maxRecommendedWorkers
	}
	return recommended
}

// CheckMemoryPressure returns a warning when workers local inferences would
// not fit in available memory, or "" when they fit or memory is unknown.
func CheckMemoryPressure(workers int) string {
	total, available, err := getMemoryStats()
	if err != nil || total == 0 {
		return ""
	}
	availableGB := float64(available) / bytesPerGB
	totalGB := float64(total) / bytesPerGB
	recommended := RecommendWorkers(availableGB)
	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB). "+
				"Consider reducing pipeline.workers to prevent memory pressure.",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
