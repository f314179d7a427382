package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
	"github.com/gbrigandi/soctalk/pkg/workflow"
)

// maxObservablesPerRound bounds how many pending observables one Cortex
// worker step enriches, per spec.md §4.9 ("pops up to 10 pending
// observables").
const maxObservablesPerRound = 10

// analyzerFor maps an observable type to the analyzer tool that handles it.
// URL observables fan out to two analyzers.
func analyzerFor(t models.ObservableType) []string {
	switch t {
	case models.ObservableIP:
		return []string{"abuseipdb"}
	case models.ObservableURL:
		return []string{"virustotal", "urlscan"}
	case models.ObservableHash:
		return []string{"virustotal"}
	case models.ObservableDomain, models.ObservableEmail, models.ObservableFQDN:
		return []string{"abusefinder"}
	default:
		return nil
	}
}

// CortexWorker enriches up to maxObservablesPerRound pending observables
// against their mapped analyzers, retrying transient analyzer failures with
// bounded backoff before recording the enrichment as failed.
func CortexWorker(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig) (*workflow.State, error) {
	pending := st.PendingObservables()
	if len(pending) > maxObservablesPerRound {
		pending = pending[:maxObservablesPerRound]
	}

	for _, obs := range pending {
		for _, analyzer := range analyzerFor(obs.Type) {
			if err := enrichOne(ctx, q, st, rc, obs, analyzer); err != nil {
				return st, fmt.Errorf("cortex worker: %w", err)
			}
		}
	}
	return st, nil
}

func enrichOne(ctx context.Context, q workflow.Querier, st *workflow.State, rc workflow.RunConfig, obs models.Observable, analyzer string) error {
	ev, err := rc.Emitter.EnrichmentRequested(ctx, q, st.InvestigationID, obs, analyzer, st.Version)
	if err != nil {
		return fmt.Errorf("emit enrichment requested: %w", err)
	}
	st.Version = ev.Version

	start := time.Now()
	raw, err := invokeWithRetry(ctx, rc.Analyzer, integrations.AnalyzerCall{Analyzer: analyzer, Observable: obs})
	elapsedMs := float64(time.Since(start).Milliseconds())

	var enrichment models.Enrichment
	if err != nil {
		enrichment = models.Enrichment{Kind: models.EnrichmentFailed, ObservableKey: obs.Key(), Analyzer: analyzer, Verdict: models.VerdictUnknown, Error: err.Error()}
		ev, emitErr := rc.Emitter.EnrichmentFailed(ctx, q, st.InvestigationID, obs, analyzer, err.Error(), st.Version)
		if emitErr != nil {
			return fmt.Errorf("emit enrichment failed: %w", emitErr)
		}
		st.Version = ev.Version
	} else {
		result := parseAnalyzerResponse(analyzer, raw)
		enrichment = models.Enrichment{Kind: models.EnrichmentResult, ObservableKey: obs.Key(), Analyzer: analyzer, Verdict: result.Verdict, Confidence: result.Confidence, Details: result.Details}
		ev, emitErr := rc.Emitter.EnrichmentCompleted(ctx, q, st.InvestigationID, obs, enrichment, st.Version)
		if emitErr != nil {
			return fmt.Errorf("emit enrichment completed: %w", emitErr)
		}
		st.Version = ev.Version
	}

	ev, err = rc.Emitter.AnalyzerCompleted(ctx, q, st.InvestigationID, analyzer, elapsedMs, enrichment.Error, st.Version)
	if err != nil {
		return fmt.Errorf("emit analyzer completed: %w", err)
	}
	st.Version = ev.Version
	st.Enrichments = append(st.Enrichments, enrichment)
	return nil
}

// invokeWithRetry bounds the analyzer call to 15 attempts within ~60s, per
// spec.md §5 ("Analyzer calls use a bounded retry (≤15 attempts, ~60s)").
func invokeWithRetry(ctx context.Context, client integrations.AnalyzerClient, call integrations.AnalyzerCall) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 60 * time.Second
	bounded := backoff.WithMaxRetries(bo, 14) // 14 retries + the first attempt = 15 total

	var raw string
	op := func() error {
		var err error
		raw, err = client.Invoke(ctx, call)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(bounded, ctx)); err != nil {
		return "", err
	}
	return raw, nil
}

// parseAnalyzerResponse applies the spec-pinned per-analyzer verdict rules
// to an analyzer's free-text response.
func parseAnalyzerResponse(analyzer, raw string) integrations.AnalyzerResult {
	lower := strings.ToLower(raw)
	switch analyzer {
	case "abuseipdb":
		score := extractPercent(lower, "confidence score")
		switch {
		case score >= 80:
			return integrations.AnalyzerResult{Verdict: models.VerdictMalicious, Confidence: score / 100, Details: raw}
		case score >= 30:
			return integrations.AnalyzerResult{Verdict: models.VerdictSuspicious, Confidence: score / 100, Details: raw}
		default:
			return integrations.AnalyzerResult{Verdict: models.VerdictBenign, Confidence: 1 - score/100, Details: raw}
		}
	case "virustotal":
		ratio := extractRatio(lower)
		switch {
		case ratio >= 0.3:
			return integrations.AnalyzerResult{Verdict: models.VerdictMalicious, Confidence: ratio, Details: raw}
		case ratio >= 0.1:
			return integrations.AnalyzerResult{Verdict: models.VerdictSuspicious, Confidence: ratio, Details: raw}
		default:
			return integrations.AnalyzerResult{Verdict: models.VerdictBenign, Confidence: 1 - ratio, Details: raw}
		}
	default: // urlscan, abusefinder: no numeric scoring rule documented
		if strings.Contains(lower, "malicious") {
			return integrations.AnalyzerResult{Verdict: models.VerdictMalicious, Confidence: 0.8, Details: raw}
		}
		if strings.Contains(lower, "suspicious") || strings.Contains(lower, "abuse") {
			return integrations.AnalyzerResult{Verdict: models.VerdictSuspicious, Confidence: 0.5, Details: raw}
		}
		return integrations.AnalyzerResult{Verdict: models.VerdictBenign, Confidence: 0.6, Details: raw}
	}
}

// extractPercent scans for "<label>: NN" or "NN%" near label and returns NN
// as a float; 0 if not found.
func extractPercent(lower, label string) float64 {
	idx := strings.Index(lower, label)
	if idx < 0 {
		return 0
	}
	rest := lower[idx+len(label):]
	return firstNumber(rest)
}

// extractRatio parses a "X/Y" detection ratio and returns X/Y, 0 if absent.
func extractRatio(lower string) float64 {
	idx := strings.Index(lower, "/")
	if idx <= 0 {
		return 0
	}
	start := idx - 1
	for start > 0 && lower[start-1] >= '0' && lower[start-1] <= '9' {
		start--
	}
	end := idx + 1
	for end < len(lower) && lower[end] >= '0' && lower[end] <= '9' {
		end++
	}
	num, err1 := strconv.Atoi(lower[start:idx])
	den, err2 := strconv.Atoi(lower[idx+1 : end])
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func firstNumber(s string) float64 {
	start := -1
	for i, c := range s {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			if err != nil {
				return 0
			}
			return float64(n)
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(s[start:])
		if err == nil {
			return float64(n)
		}
	}
	return 0
}
