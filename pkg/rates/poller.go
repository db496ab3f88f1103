package rates

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller periodically fetches latest rates and hands them to onUpdate.
// Feeds the websocket rates channel.
type Poller struct {
	source   Source
	base     string
	interval time.Duration
	onUpdate func(*LatestResponse)
	log      *zap.SugaredLogger
}

func NewPoller(source Source, base string, interval time.Duration, onUpdate func(*LatestResponse), log *zap.SugaredLogger) *Poller {
	return &Poller{
		source:   source,
		base:     base,
		interval: interval,
		onUpdate: onUpdate,
		log:      log,
	}
}

// Run polls until ctx is cancelled. The first fetch happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("rate polling stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	latest, err := p.source.Latest(ctx, p.base)
	if err != nil {
		p.log.Warnw("rate_poll_failed", "base", p.base, "err", err)
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(latest)
	}
}
