package aircon

import (
	"context"
	"time"

	"github.com/nerrad567/ac-mqtt-bridge/internal/device"
)

// poller owns the status loop of one device. It is the only writer of that
// device's published state.
type poller struct {
	adapter  *device.Adapter
	interval time.Duration

	// trigger carries the history source of a requested immediate read.
	// One pending request is enough; further nudges are dropped.
	trigger chan string

	// failures counts consecutive failed reads. Touched only by runPoller.
	failures int
}

func newPoller(adapter *device.Adapter, interval time.Duration) *poller {
	if d := adapter.Descriptor().PollInterval; d > 0 {
		interval = d
	}
	return &poller{
		adapter:  adapter,
		interval: interval,
		trigger:  make(chan string, 1),
	}
}

// nudge requests an immediate read without blocking.
func (p *poller) nudge(source string) {
	select {
	case p.trigger <- source:
	default:
	}
}

// runPoller reads the device once at start, then on every tick or nudge, until
// ctx is cancelled.
func (b *Bridge) runPoller(ctx context.Context, p *poller) error {
	if ctx.Err() != nil {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	b.pollOnce(ctx, p, device.StateHistorySourcePoll)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.pollOnce(ctx, p, device.StateHistorySourcePoll)
		case source := <-p.trigger:
			b.pollOnce(ctx, p, source)
		}
	}
}

// pollOnce reads status and hands the snapshot to the publisher. It is
// detached from cancellation so a shutdown lets it finish or time out on its own.
func (b *Bridge) pollOnce(ctx context.Context, p *poller, source string) {
	addr := p.adapter.Address()
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	st, err := p.adapter.ReadStatus(ctx)
	b.metrics.poll(addr, time.Since(start), err)

	if err != nil {
		b.publisher.MarkUnreachable(addr)
		p.failures++
		if p.failures == 1 {
			b.log().Warn("device status read failed", "address", addr, "error", err)
			b.diagnose(Diagnostic{Address: addr, Error: err.Error()})
		} else {
			b.log().Debug("device still failing", "address", addr, "failures", p.failures, "error", err)
		}
		return
	}

	if p.failures > 0 {
		b.log().Info("device reachable again", "address", addr, "failed_reads", p.failures)
		p.failures = 0
	}

	if t := b.telemetryWriter(); t != nil {
		t.WriteDeviceState(addr, st)
	}

	n, err := b.publisher.Publish(ctx, Update{
		Address: addr,
		Family:  p.adapter.Family(),
		State:   st,
		Source:  source,
	})
	if err != nil {
		b.log().Warn("state publication incomplete", "address", addr, "published", n, "error", err)
		return
	}
	if n > 0 {
		b.log().Debug("state published", "address", addr, "fields", n, "source", source)
	}
}
