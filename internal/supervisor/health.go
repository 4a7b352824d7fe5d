package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/holepunchto/blind-peer-cli/internal/logger"
	"github.com/holepunchto/blind-peer-cli/pkg/engine"
)

// Stream health sampling constants. Fixed on purpose: the sampler is a
// diagnostic aid, not a tunable subsystem.
const (
	healthSampleInterval      = 30 * time.Second
	pendingWriteWarnThreshold = 100
)

// StreamHealthMonitor periodically inspects the swarm's raw transport
// streams and warns about any with an excessive outstanding-write count.
//
// It observes only: a sample never blocks, cancels or otherwise affects the
// monitored streams, and a failed enumeration is a missed data point, not a
// fault.
type StreamHealthMonitor struct {
	log      *slog.Logger
	swarm    engine.Swarm
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewStreamHealthMonitor builds a monitor over swarm. Start must be called
// to begin sampling.
func NewStreamHealthMonitor(swarm engine.Swarm, log *slog.Logger) *StreamHealthMonitor {
	return &StreamHealthMonitor{
		log:      log.With(logger.KeyComponent, "stream-health"),
		swarm:    swarm,
		interval: healthSampleInterval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the sampling loop.
func (m *StreamHealthMonitor) Start() {
	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *StreamHealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	<-m.stopped
}

// sample takes one health sample and logs any anomalies.
func (m *StreamHealthMonitor) sample() {
	streams, err := m.swarm.Streams()
	if err != nil {
		// Never escalated: the next tick simply tries again.
		m.log.Warn("stream health sample failed", logger.KeyError, err.Error())
		return
	}

	exceeded := 0
	for _, s := range streams {
		pending := s.PendingWrites()
		if pending > pendingWriteWarnThreshold {
			exceeded++
			m.log.Warn("stream has excessive pending writes",
				logger.KeyStream, s.ID(),
				"pending_writes", pending,
				"threshold", pendingWriteWarnThreshold)
		}
	}
	if exceeded > 0 {
		m.log.Warn("streams over pending-write threshold",
			"count", exceeded,
			"total_streams", len(streams))
	}
}
