package history

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sentinelops/sentinel-go/internal/model"
)

const (
	detectionIDPrefix   = "det-"
	activityLogIDPrefix = "log-"
)

// idCounters issues the session-local monotonic ids for detections and
// activity logs. Hydration resynchronizes both counters from persisted data
// so fresh local ids cannot collide with remote ones.
type idCounters struct {
	mu            sync.Mutex
	nextDetection int
	nextLog       int
}

func newIDCounters() idCounters {
	return idCounters{nextDetection: 1, nextLog: 1}
}

func (c *idCounters) nextDetectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := detectionIDPrefix + strconv.Itoa(c.nextDetection)
	c.nextDetection++
	return id
}

func (c *idCounters) nextActivityLogID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := activityLogIDPrefix + strconv.Itoa(c.nextLog)
	c.nextLog++
	return id
}

// resync scans the hydrated collections for the highest numeric id suffix and
// resumes both counters from max+1. Unparsable ids are skipped and empty
// collections fall back to counter = 1.
func (c *idCounters) resync(analyses []model.AnalysisRecord, logs []model.ActivityLog) {
	maxDetection := 0
	for i := range analyses {
		for j := range analyses[i].Detections {
			if n, ok := numericSuffix(analyses[i].Detections[j].ID); ok && n > maxDetection {
				maxDetection = n
			}
		}
	}

	maxLog := 0
	for i := range logs {
		if n, ok := numericSuffix(logs[i].ID); ok && n > maxLog {
			maxLog = n
		}
	}

	c.mu.Lock()
	c.nextDetection = maxDetection + 1
	c.nextLog = maxLog + 1
	c.mu.Unlock()
}

// numericSuffix extracts the integer after the last '-' in an id.
// Malformed ids report ok=false and are ignored by the max-fold.
func numericSuffix(id string) (int, bool) {
	idx := strings.LastIndexByte(id, '-')
	if idx < 0 || idx == len(id)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
