// Package projector applies committed events to every read model they
// affect: the investigations table, pending_reviews, and the aggregated
// metrics tables. Project is idempotent under full replay — rebuilding a
// read-model row by re-applying an aggregate's full event stream from a
// blank slate reproduces the online-built row.
package projector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gbrigandi/soctalk/pkg/models"
)

// Projector dispatches one event at a time onto the read models, using the
// same Querier the caller is already writing the causative event through —
// projection happens in the same transaction as the append, never after.
type Projector struct {
	q Querier
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New returns a Projector bound to q.
func New(q Querier) *Projector {
	return &Projector{q: q}
}

// Project dispatches ev to every read model it affects.
func (p *Projector) Project(ctx context.Context, ev models.Event) error {
	switch ev.EventType {
	case models.EventInvestigationCreated:
		return p.onInvestigationCreated(ctx, ev)
	case models.EventInvestigationStarted:
		return p.onInvestigationStarted(ctx, ev)
	case models.EventInvestigationPaused:
		return p.setStatus(ctx, ev.AggregateID, models.StatusPaused)
	case models.EventInvestigationResumed:
		return p.setStatus(ctx, ev.AggregateID, models.StatusInProgress)
	case models.EventInvestigationCancelled:
		return p.onInvestigationCancelled(ctx, ev)
	case models.EventAlertCorrelated:
		return p.onAlertCorrelated(ctx, ev)
	case models.EventObservableExtracted:
		return p.onObservableExtracted(ctx, ev)
	case models.EventEnrichmentCompleted:
		return p.onEnrichmentCompleted(ctx, ev)
	case models.EventPhaseChanged:
		return p.onPhaseChanged(ctx, ev)
	case models.EventSupervisorDecision:
		return nil // no read-model effect; kept in the event log for the timeline view
	case models.EventVerdictRendered:
		return p.onVerdictRendered(ctx, ev)
	case models.EventHumanReviewRequested:
		return p.onHumanReviewRequested(ctx, ev)
	case models.EventHumanDecisionReceived:
		return p.onHumanDecisionReceived(ctx, ev)
	case models.EventTheHiveCaseCreated:
		return p.onTheHiveCaseCreated(ctx, ev)
	case models.EventInvestigationClosed:
		return p.onInvestigationClosed(ctx, ev)
	case models.EventAnalyzerInvoked:
		return p.bumpAnalyzerStats(ctx, ev, false)
	case models.EventAnalyzerCompleted:
		return p.bumpAnalyzerStats(ctx, ev, true)
	case models.EventEnrichmentFailed, models.EventEnrichmentRequested,
		models.EventMISPContextAdded, models.EventWazuhQueried:
		return nil // logged for the timeline; no dedicated read-model effect
	default:
		return fmt.Errorf("projector: unknown event type %q", ev.EventType)
	}
}

func str(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func f64(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (p *Projector) onInvestigationCreated(ctx context.Context, ev models.Event) error {
	title := str(ev.Data, "title")
	severity := models.Severity(str(ev.Data, "max_severity"))
	if severity == "" {
		severity = models.SeverityLow
	}

	_, err := p.q.ExecContext(ctx,
		`INSERT INTO investigations (id, title, status, phase, max_severity, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (id) DO NOTHING`,
		ev.AggregateID, title, models.StatusPending, models.PhaseTriage, severity, []byte("[]"), ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("project investigation.created: %w", err)
	}
	return p.bumpHourly(ctx, ev.Timestamp, "investigations_created", 1)
}

func (p *Projector) onInvestigationStarted(ctx context.Context, ev models.Event) error {
	title := str(ev.Data, "title")
	if title != "" {
		_, err := p.q.ExecContext(ctx,
			`UPDATE investigations SET status = $2, title = $3, updated_at = $4 WHERE id = $1`,
			ev.AggregateID, models.StatusInProgress, title, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("project investigation.started: %w", err)
		}
		return nil
	}
	return p.setStatus(ctx, ev.AggregateID, models.StatusInProgress)
}

func (p *Projector) setStatus(ctx context.Context, aggregateID any, status models.InvestigationStatus) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET status = $2, updated_at = now() WHERE id = $1`,
		aggregateID, status)
	if err != nil {
		return fmt.Errorf("project status=%s: %w", status, err)
	}
	return nil
}

func (p *Projector) onInvestigationCancelled(ctx context.Context, ev models.Event) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET status = $2, closed_at = $3, updated_at = $3 WHERE id = $1`,
		ev.AggregateID, models.StatusCancelled, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("project investigation.cancelled: %w", err)
	}
	return nil
}

func (p *Projector) onAlertCorrelated(ctx context.Context, ev models.Event) error {
	severity := models.Severity(str(ev.Data, "severity"))
	ruleID := str(ev.Data, "rule_id")

	if err := p.upgradeMaxSeverity(ctx, ev.AggregateID, severity, ev.Timestamp); err != nil {
		return fmt.Errorf("project alert.correlated: %w", err)
	}

	if err := p.bumpHourly(ctx, ev.Timestamp, "total_alerts", 1); err != nil {
		return err
	}
	if ruleID != "" {
		if err := p.bumpRuleStats(ctx, ruleID, ev.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// upgradeMaxSeverity reads the current max_severity, computes the monotone
// max in Go (Postgres has no ordering over these string labels), and writes
// the alert_count bump and possibly-updated severity back in one statement.
func (p *Projector) upgradeMaxSeverity(ctx context.Context, aggregateID any, incoming models.Severity, ts time.Time) error {
	var current models.Severity
	err := p.q.QueryRowContext(ctx, `SELECT max_severity FROM investigations WHERE id = $1`, aggregateID).Scan(&current)
	if err != nil {
		return fmt.Errorf("read max_severity: %w", err)
	}
	next := models.MaxSeverity(current, incoming)
	_, err = p.q.ExecContext(ctx,
		`UPDATE investigations SET alert_count = alert_count + 1, max_severity = $2, updated_at = $3 WHERE id = $1`,
		aggregateID, next, ts)
	if err != nil {
		return fmt.Errorf("write max_severity: %w", err)
	}
	return nil
}

func (p *Projector) onObservableExtracted(ctx context.Context, ev models.Event) error {
	value := str(ev.Data, "value")
	obsType := str(ev.Data, "type")

	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET observable_count = observable_count + 1, updated_at = $2 WHERE id = $1`,
		ev.AggregateID, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("project observable.extracted: %w", err)
	}
	if err := p.bumpHourly(ctx, ev.Timestamp, "total_observables", 1); err != nil {
		return err
	}
	return p.bumpIOCSeen(ctx, value, obsType, ev.Timestamp)
}

func (p *Projector) onEnrichmentCompleted(ctx context.Context, ev models.Event) error {
	verdict := models.EnrichmentVerdict(str(ev.Data, "verdict"))
	value := str(ev.Data, "observable_value")
	obsType := str(ev.Data, "observable_type")

	switch verdict {
	case models.VerdictMalicious:
		if _, err := p.q.ExecContext(ctx,
			`UPDATE investigations SET malicious_count = malicious_count + 1, updated_at = $2 WHERE id = $1`,
			ev.AggregateID, ev.Timestamp); err != nil {
			return fmt.Errorf("project enrichment.completed(malicious): %w", err)
		}
		threatActor := str(ev.Data, "threat_actor")
		if err := p.bumpIOCVerdict(ctx, value, obsType, true, threatActor); err != nil {
			return err
		}
		if err := p.bumpHourly(ctx, ev.Timestamp, "malicious_observables", 1); err != nil {
			return err
		}
	case models.VerdictSuspicious:
		if _, err := p.q.ExecContext(ctx,
			`UPDATE investigations SET suspicious_count = suspicious_count + 1, updated_at = $2 WHERE id = $1`,
			ev.AggregateID, ev.Timestamp); err != nil {
			return fmt.Errorf("project enrichment.completed(suspicious): %w", err)
		}
	case models.VerdictBenign:
		if _, err := p.q.ExecContext(ctx,
			`UPDATE investigations SET clean_count = clean_count + 1, updated_at = $2 WHERE id = $1`,
			ev.AggregateID, ev.Timestamp); err != nil {
			return fmt.Errorf("project enrichment.completed(benign): %w", err)
		}
		if err := p.bumpIOCVerdict(ctx, value, obsType, false, ""); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) onPhaseChanged(ctx context.Context, ev models.Event) error {
	phase := models.Phase(str(ev.Data, "phase"))

	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET phase = $2, updated_at = $3 WHERE id = $1`,
		ev.AggregateID, phase, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("project phase.changed: %w", err)
	}

	if phase == models.PhaseVerdict {
		var triage *float64
		if err := p.q.QueryRowContext(ctx,
			`SELECT time_to_triage_seconds FROM investigations WHERE id = $1`, ev.AggregateID,
		).Scan(&triage); err != nil {
			return fmt.Errorf("read time_to_triage_seconds: %w", err)
		}
		if triage == nil {
			var createdAt time.Time
			if err := p.q.QueryRowContext(ctx,
				`SELECT created_at FROM investigations WHERE id = $1`, ev.AggregateID,
			).Scan(&createdAt); err != nil {
				return fmt.Errorf("read created_at: %w", err)
			}
			seconds := ev.Timestamp.Sub(createdAt).Seconds()
			if _, err := p.q.ExecContext(ctx,
				`UPDATE investigations SET time_to_triage_seconds = $2 WHERE id = $1`,
				ev.AggregateID, seconds); err != nil {
				return fmt.Errorf("write time_to_triage_seconds: %w", err)
			}
		}
	}
	return nil
}

func (p *Projector) onVerdictRendered(ctx context.Context, ev models.Event) error {
	decision := str(ev.Data, "decision")
	confidence := f64(ev.Data, "confidence")
	reasoning := str(ev.Data, "reasoning")

	var createdAt time.Time
	if err := p.q.QueryRowContext(ctx,
		`SELECT created_at FROM investigations WHERE id = $1`, ev.AggregateID,
	).Scan(&createdAt); err != nil {
		return fmt.Errorf("read created_at for verdict: %w", err)
	}
	seconds := ev.Timestamp.Sub(createdAt).Seconds()

	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET verdict_decision = $2, verdict_confidence = $3, verdict_reasoning = $4,
		 phase = $5, time_to_verdict_seconds = $6, updated_at = $7 WHERE id = $1`,
		ev.AggregateID, decision, confidence, reasoning, models.PhaseVerdict, seconds, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("project verdict.rendered: %w", err)
	}
	return p.bumpAvgTimeToVerdict(ctx, ev.Timestamp, seconds)
}

func (p *Projector) onHumanReviewRequested(ctx context.Context, ev models.Event) error {
	if _, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET phase = $2, status = CASE WHEN status = $3 THEN $4 ELSE status END, updated_at = $5
		 WHERE id = $1`,
		ev.AggregateID, models.PhaseHuman, models.StatusPending, models.StatusInProgress, ev.Timestamp); err != nil {
		return fmt.Errorf("project human.review_requested: %w", err)
	}

	var existing int
	if err := p.q.QueryRowContext(ctx,
		`SELECT count(*) FROM pending_reviews WHERE investigation_id = $1 AND status = $2`,
		ev.AggregateID, models.ReviewPending,
	).Scan(&existing); err != nil {
		return fmt.Errorf("check existing pending review: %w", err)
	}
	if existing > 0 {
		return nil
	}

	findingsJSON, _ := json.Marshal(ev.Data["findings"])
	enrichmentsJSON, _ := json.Marshal(ev.Data["enrichments"])
	mispJSON, _ := json.Marshal(ev.Data["misp_context"])

	_, err := p.q.ExecContext(ctx,
		`INSERT INTO pending_reviews (id, investigation_id, status, ai_decision, ai_confidence, ai_assessment,
		 ai_recommendation, findings, enrichments, misp_context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.AggregateID, models.ReviewPending, str(ev.Data, "ai_decision"), f64(ev.Data, "ai_confidence"),
		str(ev.Data, "ai_assessment"), str(ev.Data, "ai_recommendation"), findingsJSON, enrichmentsJSON, mispJSON,
		ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert pending review: %w", err)
	}
	return nil
}

func (p *Projector) onHumanDecisionReceived(ctx context.Context, ev models.Event) error {
	decision := models.HumanDecision(str(ev.Data, "decision"))
	status := models.MapHumanDecision(decision)
	reviewer := str(ev.Data, "reviewer")
	feedback := str(ev.Data, "feedback")

	_, err := p.q.ExecContext(ctx,
		`UPDATE pending_reviews SET status = $2, responded_at = $3, reviewer = $4, feedback = $5
		 WHERE investigation_id = $1 AND status = $6`,
		ev.AggregateID, status, ev.Timestamp, reviewer, feedback, models.ReviewPending)
	if err != nil {
		return fmt.Errorf("project human.decision_received: %w", err)
	}
	return nil
}

func (p *Projector) onTheHiveCaseCreated(ctx context.Context, ev models.Event) error {
	caseID := str(ev.Data, "case_id")

	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET thehive_case_id = $2, status = $3, phase = $4, updated_at = $5 WHERE id = $1`,
		ev.AggregateID, caseID, models.StatusEscalated, models.PhaseEscalation, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("project thehive.case_created: %w", err)
	}
	return p.bumpHourly(ctx, ev.Timestamp, "escalations", 1)
}

func (p *Projector) onInvestigationClosed(ctx context.Context, ev models.Event) error {
	resolution := str(ev.Data, "resolution")
	status := deriveFinalStatus(ev.Data, resolution)

	_, err := p.q.ExecContext(ctx,
		`UPDATE investigations SET status = $2, closed_at = $3, phase = $4, updated_at = $3 WHERE id = $1`,
		ev.AggregateID, status, ev.Timestamp, models.PhaseClosed)
	if err != nil {
		return fmt.Errorf("project investigation.closed: %w", err)
	}

	if status != models.StatusEscalated {
		if err := p.bumpHourly(ctx, ev.Timestamp, "investigations_closed", 1); err != nil {
			return err
		}
	}
	if status == models.StatusAutoClosed {
		if err := p.bumpHourly(ctx, ev.Timestamp, "auto_closed", 1); err != nil {
			return err
		}
	}
	return nil
}

// deriveFinalStatus implements the exact wording pinned by spec §9 Open
// Questions, checked in this order: a payload naming a thehive_case_id is
// escalated; a resolution containing "rejected" (case-insensitive) is
// rejected; verdict_decision "close" with a resolution starting with
// "closed by AI verdict" (case-insensitive) is auto_closed; anything else is
// closed.
func deriveFinalStatus(data map[string]any, resolution string) models.InvestigationStatus {
	if caseID := str(data, "thehive_case_id"); caseID != "" {
		return models.StatusEscalated
	}
	lower := strings.ToLower(resolution)
	if strings.Contains(lower, "rejected") {
		return models.StatusRejected
	}
	verdictDecision := str(data, "verdict_decision")
	if verdictDecision == string(models.DecisionClose) && strings.HasPrefix(lower, "closed by ai verdict") {
		return models.StatusAutoClosed
	}
	return models.StatusClosed
}

func (p *Projector) bumpAnalyzerStats(ctx context.Context, ev models.Event, completed bool) error {
	analyzer := str(ev.Data, "analyzer")
	if analyzer == "" {
		return nil
	}
	if !completed {
		_, err := p.q.ExecContext(ctx,
			`INSERT INTO analyzer_stats (analyzer, invocations) VALUES ($1, 1)
			 ON CONFLICT (analyzer) DO UPDATE SET invocations = analyzer_stats.invocations + 1`,
			analyzer)
		if err != nil {
			return fmt.Errorf("project analyzer.invoked: %w", err)
		}
		return nil
	}

	success := str(ev.Data, "error") == ""
	responseMs := f64(ev.Data, "response_time_ms")
	successInc, failInc := 0, 0
	if success {
		successInc = 1
	} else {
		failInc = 1
	}

	row := p.q.QueryRowContext(ctx,
		`SELECT successes, failures, avg_response_time_ms FROM analyzer_stats WHERE analyzer = $1`, analyzer)
	var successes, failures int
	var avgMs float64
	if err := row.Scan(&successes, &failures, &avgMs); err != nil {
		if err == sql.ErrNoRows {
			_, err := p.q.ExecContext(ctx,
				`INSERT INTO analyzer_stats (analyzer, invocations, successes, failures, avg_response_time_ms)
				 VALUES ($1, 1, $2, $3, $4)`,
				analyzer, successInc, failInc, responseMs)
			if err != nil {
				return fmt.Errorf("insert analyzer stats: %w", err)
			}
			return nil
		}
		return fmt.Errorf("read analyzer stats: %w", err)
	}

	sampleCount := successes + failures
	newAvg := incrementalMean(avgMs, sampleCount, responseMs)

	_, err := p.q.ExecContext(ctx,
		`UPDATE analyzer_stats SET successes = successes + $2, failures = failures + $3, avg_response_time_ms = $4
		 WHERE analyzer = $1`,
		analyzer, successInc, failInc, newAvg)
	if err != nil {
		return fmt.Errorf("update analyzer stats: %w", err)
	}
	return nil
}

func incrementalMean(currentAvg float64, currentCount int, sample float64) float64 {
	return currentAvg + (sample-currentAvg)/float64(currentCount+1)
}

func (p *Projector) bumpHourly(ctx context.Context, ts time.Time, column string, delta int) error {
	bucket := ts.Truncate(time.Hour)
	query := fmt.Sprintf(
		`INSERT INTO metrics_hourly (bucket_hour, %s) VALUES ($1, $2)
		 ON CONFLICT (bucket_hour) DO UPDATE SET %s = metrics_hourly.%s + $2`,
		column, column, column)
	if _, err := p.q.ExecContext(ctx, query, bucket, delta); err != nil {
		return fmt.Errorf("bump hourly %s: %w", column, err)
	}
	return nil
}

func (p *Projector) bumpAvgTimeToVerdict(ctx context.Context, ts time.Time, seconds float64) error {
	bucket := ts.Truncate(time.Hour)
	row := p.q.QueryRowContext(ctx,
		`SELECT avg_time_to_verdict, verdict_sample_count FROM metrics_hourly WHERE bucket_hour = $1`, bucket)
	var avg float64
	var count int
	if err := row.Scan(&avg, &count); err != nil {
		if err == sql.ErrNoRows {
			_, err := p.q.ExecContext(ctx,
				`INSERT INTO metrics_hourly (bucket_hour, avg_time_to_verdict, verdict_sample_count) VALUES ($1, $2, 1)`,
				bucket, seconds)
			if err != nil {
				return fmt.Errorf("insert hourly verdict avg: %w", err)
			}
			return nil
		}
		return fmt.Errorf("read hourly verdict avg: %w", err)
	}
	newAvg := incrementalMean(avg, count, seconds)
	_, err := p.q.ExecContext(ctx,
		`UPDATE metrics_hourly SET avg_time_to_verdict = $2, verdict_sample_count = verdict_sample_count + 1
		 WHERE bucket_hour = $1`,
		bucket, newAvg)
	if err != nil {
		return fmt.Errorf("update hourly verdict avg: %w", err)
	}
	return nil
}

func (p *Projector) bumpIOCSeen(ctx context.Context, value, obsType string, ts time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO ioc_stats (value, type, times_seen, first_seen, last_seen) VALUES ($1, $2, 1, $3, $3)
		 ON CONFLICT (value, type) DO UPDATE SET times_seen = ioc_stats.times_seen + 1, last_seen = $3`,
		value, obsType, ts)
	if err != nil {
		return fmt.Errorf("bump ioc seen: %w", err)
	}
	return nil
}

func (p *Projector) bumpIOCVerdict(ctx context.Context, value, obsType string, malicious bool, threatActor string) error {
	column := "benign_count"
	if malicious {
		column = "malicious_count"
	}
	query := fmt.Sprintf(
		`INSERT INTO ioc_stats (value, type, %s) VALUES ($1, $2, 1)
		 ON CONFLICT (value, type) DO UPDATE SET %s = ioc_stats.%s + 1`,
		column, column, column)
	if _, err := p.q.ExecContext(ctx, query, value, obsType); err != nil {
		return fmt.Errorf("bump ioc verdict: %w", err)
	}
	if malicious && threatActor != "" {
		if err := p.addThreatActor(ctx, value, obsType, threatActor); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) addThreatActor(ctx context.Context, value, obsType, threatActor string) error {
	row := p.q.QueryRowContext(ctx, `SELECT threat_actors FROM ioc_stats WHERE value = $1 AND type = $2`, value, obsType)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("read threat actors: %w", err)
	}
	var actors []string
	if err := json.Unmarshal(raw, &actors); err != nil {
		return fmt.Errorf("unmarshal threat actors: %w", err)
	}
	for _, a := range actors {
		if a == threatActor {
			return nil
		}
	}
	actors = append(actors, threatActor)
	next, err := json.Marshal(actors)
	if err != nil {
		return fmt.Errorf("marshal threat actors: %w", err)
	}
	if _, err := p.q.ExecContext(ctx,
		`UPDATE ioc_stats SET threat_actors = $3 WHERE value = $1 AND type = $2`, value, obsType, next); err != nil {
		return fmt.Errorf("write threat actors: %w", err)
	}
	return nil
}

func (p *Projector) bumpRuleStats(ctx context.Context, ruleID string, ts time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO rule_stats (rule_id, times_triggered, last_triggered) VALUES ($1, 1, $2)
		 ON CONFLICT (rule_id) DO UPDATE SET times_triggered = rule_stats.times_triggered + 1, last_triggered = $2`,
		ruleID, ts)
	if err != nil {
		return fmt.Errorf("bump rule stats: %w", err)
	}
	return nil
}
