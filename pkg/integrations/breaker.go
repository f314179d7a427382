package integrations

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// newBreaker returns a circuit breaker tripping after 5 consecutive
// failures and probing again after a 30s cooldown. Each enrichment
// interface gets its own breaker so a flapping analyzer can't trip the
// breaker guarding, say, the IR case system.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// BreakerAnalyzerClient wraps an AnalyzerClient so a stuck or flapping
// analyzer fails fast instead of blocking every worker waiting on it.
type BreakerAnalyzerClient struct {
	inner   AnalyzerClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerAnalyzerClient wraps inner with a circuit breaker.
func NewBreakerAnalyzerClient(inner AnalyzerClient) *BreakerAnalyzerClient {
	return &BreakerAnalyzerClient{inner: inner, breaker: newBreaker("analyzer")}
}

// Invoke calls inner.Invoke through the breaker.
func (b *BreakerAnalyzerClient) Invoke(ctx context.Context, call AnalyzerCall) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Invoke(ctx, call)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// BreakerIRClient wraps an IRClient with a circuit breaker.
type BreakerIRClient struct {
	inner   IRClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerIRClient wraps inner with a circuit breaker.
func NewBreakerIRClient(inner IRClient) *BreakerIRClient {
	return &BreakerIRClient{inner: inner, breaker: newBreaker("ir")}
}

// CreateCase calls inner.CreateCase through the breaker.
func (b *BreakerIRClient) CreateCase(ctx context.Context, investigationID, title, description string, severity models.Severity) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.CreateCase(ctx, investigationID, title, description, severity)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// BreakerTIClient wraps a TIClient with a circuit breaker.
type BreakerTIClient struct {
	inner   TIClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerTIClient wraps inner with a circuit breaker.
func NewBreakerTIClient(inner TIClient) *BreakerTIClient {
	return &BreakerTIClient{inner: inner, breaker: newBreaker("ti")}
}

// SearchIOC calls inner.SearchIOC through the breaker.
func (b *BreakerTIClient) SearchIOC(ctx context.Context, obs models.Observable) (bool, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		matched, err := b.inner.SearchIOC(ctx, obs)
		return matched, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// FetchEventContext calls inner.FetchEventContext through the same breaker
// SearchIOC uses — both hit the same MISP backend.
func (b *BreakerTIClient) FetchEventContext(ctx context.Context, obs models.Observable, limit int) ([]MISPEvent, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.FetchEventContext(ctx, obs, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]MISPEvent), nil
}

// BreakerWazuhClient wraps a WazuhClient with a circuit breaker.
type BreakerWazuhClient struct {
	inner   WazuhClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerWazuhClient wraps inner with a circuit breaker.
func NewBreakerWazuhClient(inner WazuhClient) *BreakerWazuhClient {
	return &BreakerWazuhClient{inner: inner, breaker: newBreaker("wazuh")}
}

// Query calls inner.Query through the breaker.
func (b *BreakerWazuhClient) Query(ctx context.Context, q WazuhQuery) (WazuhResult, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Query(ctx, q)
	})
	if err != nil {
		return WazuhResult{}, err
	}
	return result.(WazuhResult), nil
}

// BreakerSIEMClient wraps a SIEMClient with a circuit breaker, so a SIEM
// outage degrades the poller to empty batches instead of hanging it.
type BreakerSIEMClient struct {
	inner   SIEMClient
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSIEMClient wraps inner with a circuit breaker.
func NewBreakerSIEMClient(inner SIEMClient) *BreakerSIEMClient {
	return &BreakerSIEMClient{inner: inner, breaker: newBreaker("siem")}
}

// FetchAlerts calls inner.FetchAlerts through the breaker.
func (b *BreakerSIEMClient) FetchAlerts(ctx context.Context, max int) ([]RawAlert, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.FetchAlerts(ctx, max)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RawAlert), nil
}
