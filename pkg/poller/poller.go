// Package poller implements the buffered, deduplicating, severity-sorted
// fetcher that sits between the SIEM interface and the correlator.
package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gbrigandi/soctalk/pkg/integrations"
)

// severityOrder ranks severities for the poller's stable sort: critical
// alerts surface first.
var severityOrder = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

// Config holds the poller's tunables.
type Config struct {
	Interval          time.Duration
	MaxAlertsPerPoll  int
	BatchSize         int
	SeenCacheCapacity int
}

// Poller fetches from a SIEMClient on demand, deduplicates by alert id, and
// serves severity-sorted batches. Not safe for concurrent callers — it is
// meant to be driven by a single poller goroutine (SPEC_FULL.md's
// one-task-per-poller scheduling model).
type Poller struct {
	siem   integrations.SIEMClient
	cfg    Config
	seen   SeenCache
	buffer []integrations.RawAlert

	mu sync.Mutex
}

// New returns a Poller. If seenCache is nil, a bounded in-memory lruSet of
// cfg.SeenCacheCapacity is used.
func New(siem integrations.SIEMClient, cfg Config, seenCache SeenCache) *Poller {
	if seenCache == nil {
		seenCache = newLRUSet(cfg.SeenCacheCapacity)
	}
	return &Poller{siem: siem, cfg: cfg, seen: seenCache}
}

// Poll returns up to cfg.BatchSize alerts from the buffer, refilling from
// the SIEM first if the buffer is empty.
func (p *Poller) Poll(ctx context.Context) ([]integrations.RawAlert, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) == 0 {
		if err := p.refill(ctx); err != nil {
			return nil, err
		}
	}

	n := p.cfg.BatchSize
	if n > len(p.buffer) {
		n = len(p.buffer)
	}
	out := p.buffer[:n]
	p.buffer = p.buffer[n:]
	return out, nil
}

// refill fetches up to MaxAlertsPerPoll alerts, drops ones already seen,
// stable-sorts the survivors by severity, and appends them to the buffer.
func (p *Poller) refill(ctx context.Context) error {
	alerts, err := p.siem.FetchAlerts(ctx, p.cfg.MaxAlertsPerPoll)
	if err != nil {
		return err
	}

	fresh := make([]integrations.RawAlert, 0, len(alerts))
	for _, a := range alerts {
		if p.seen.Contains(a.ID) {
			continue
		}
		p.seen.Add(a.ID)
		fresh = append(fresh, a)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return severityOrder[string(fresh[i].Severity)] < severityOrder[string(fresh[j].Severity)]
	})

	p.buffer = append(p.buffer, fresh...)
	return nil
}

// Run polls continuously until ctx is cancelled, sending each non-empty
// batch to out. After the buffer empties it sleeps Interval before the next
// fetch; fetch errors are logged and retried on the next tick rather than
// stopping the loop.
func (p *Poller) Run(ctx context.Context, out chan<- []integrations.RawAlert) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		batch, err := p.Poll(ctx)
		if err != nil {
			slog.Error("poller: fetch failed, retrying next tick", "error", err)
		} else if len(batch) > 0 {
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
			continue // buffer may still hold more; don't wait for the next tick
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
