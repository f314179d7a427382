// Package correlator groups a batch of alerts into investigations by shared
// correlation keys within a time window.
package correlator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gbrigandi/soctalk/pkg/integrations"
	"github.com/gbrigandi/soctalk/pkg/models"
)

// ruleGroups is the closed list of inferred rule groups, matched as a
// case-insensitive substring of the alert's rule description.
var ruleGroups = []string{
	"sysmon", "auth", "bruteforce", "malware", "rootkit",
	"web_attack", "sql_injection", "fim", "vuln",
}

// Config holds the correlator's tunables.
type Config struct {
	CorrelationWindow time.Duration // default 15 minutes
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{CorrelationWindow: 15 * time.Minute}
}

// Group is one correlated bucket of alerts, ready to become a new
// investigation (or, for a reopened investigation, additional
// AlertCorrelated events against an existing aggregate — that decision is
// the caller's, not the correlator's).
type Group struct {
	Title       string
	Alerts      []models.Alert
	MaxSeverity models.Severity
}

// Correlate buckets alerts by their strongest shared correlation key, drops
// cross-bucket duplicate alert ids, trims each bucket to alerts within
// cfg.CorrelationWindow of the bucket's latest alert, and returns one Group
// per non-empty bucket sorted by descending max severity.
func Correlate(alerts []integrations.RawAlert, cfg Config) []Group {
	buckets := make(map[string][]integrations.RawAlert)
	order := make([]string, 0)

	for _, a := range alerts {
		key := correlationKey(a)
		if _, exists := buckets[key]; !exists {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], a)
	}

	seen := make(map[string]bool)
	groups := make([]Group, 0, len(order))

	for _, key := range order {
		bucket := buckets[key]

		var maxTS time.Time
		for _, a := range bucket {
			if a.Timestamp.After(maxTS) {
				maxTS = a.Timestamp
			}
		}
		cutoff := maxTS.Add(-cfg.CorrelationWindow)

		var filtered []integrations.RawAlert
		for _, a := range bucket {
			if seen[a.ID] {
				continue
			}
			if a.Timestamp.Before(cutoff) {
				continue
			}
			seen[a.ID] = true
			filtered = append(filtered, a)
		}
		if len(filtered) == 0 {
			continue
		}

		groups = append(groups, toGroup(key, filtered))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxSeverity.Rank() > groups[j].MaxSeverity.Rank()
	})

	return groups
}

// correlationKey returns the strongest correlation key for one alert, in
// priority order: agent, ip, hash, domain, rule group, else a standalone key.
func correlationKey(a integrations.RawAlert) string {
	if a.AgentName != "" {
		return "agent:" + a.AgentName
	}
	for _, o := range a.Observables {
		if o.Type == models.ObservableIP {
			return "ip:" + o.Value
		}
	}
	for _, o := range a.Observables {
		if o.Type == models.ObservableHash {
			return "hash:" + o.Value
		}
	}
	for _, o := range a.Observables {
		if o.Type == models.ObservableDomain {
			return "domain:" + o.Value
		}
	}
	lowerDesc := strings.ToLower(a.Description)
	for _, g := range ruleGroups {
		if strings.Contains(lowerDesc, g) {
			return "rulegroup:" + g
		}
	}
	return "standalone:" + a.ID
}

func toGroup(key string, alerts []integrations.RawAlert) Group {
	title := groupTitle(key, alerts)

	var maxSeverity models.Severity = models.SeverityLow
	modelAlerts := make([]models.Alert, len(alerts))
	for i, a := range alerts {
		maxSeverity = models.MaxSeverity(maxSeverity, a.Severity)
		modelAlerts[i] = models.Alert{
			ID:          a.ID,
			RuleID:      a.RuleID,
			Description: a.Description,
			AgentName:   a.AgentName,
			Severity:    a.Severity,
			Timestamp:   a.Timestamp,
			Observables: a.Observables,
			Raw:         a.Raw,
		}
	}

	return Group{Title: title, Alerts: modelAlerts, MaxSeverity: maxSeverity}
}

// groupTitle picks the first non-empty rule description as the title,
// falling back to the bucket key, and appends a "(+N related alerts)" suffix
// when the bucket holds more than one alert. Descriptions are not screened
// for generic wording.
func groupTitle(key string, alerts []integrations.RawAlert) string {
	title := ""
	for _, a := range alerts {
		if a.Description != "" {
			title = a.Description
			break
		}
	}
	if title == "" {
		title = key
	}
	if n := len(alerts) - 1; n > 0 {
		title = fmt.Sprintf("%s (+%d related alerts)", title, n)
	}
	return title
}
