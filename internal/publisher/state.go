package publisher

import "sync"

// stateCell is the mutable, mutex-guarded portion of a Publisher's
// observable state. The actor goroutine writes it; State() readers may be on
// any goroutine.
type stateCell struct {
	mu                     sync.RWMutex
	state                  State
	publishedCount         uint64
	failedCount            uint64
	lastPublishedSegmentID string
	lastErrorKind          string
}

func (c *stateCell) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Stopped is terminal.
	if c.state == StateStopped {
		return
	}
	c.state = s
}

func (c *stateCell) recordSuccess(segmentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishedCount++
	c.lastPublishedSegmentID = segmentID
}

func (c *stateCell) recordFailure(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedCount++
	c.lastErrorKind = kind
}

func (c *stateCell) snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		State:                  string(c.state),
		PublishedCount:         c.publishedCount,
		FailedCount:            c.failedCount,
		LastPublishedSegmentID: c.lastPublishedSegmentID,
		LastErrorKind:          c.lastErrorKind,
	}
}
