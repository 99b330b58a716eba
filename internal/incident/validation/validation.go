// File: internal/incident/validation/validation.go
// Brief: Scores a run's detection output against synthetic truth labels.

// Package validation compares a finished Core B run against the truth
// labels the scenario generator wrote alongside its snapshots: incident
// type precision/recall, top-host ranking quality, cluster detection,
// and per-scenario sanity checks. Results land in the run directory as
// validation_report.md and validation_summary.json.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
	"github.com/alleyfoo/puhemies-fleet/internal/schemavalidate"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
)

// ErrNoTruth is returned when the run has no truth.json to score against.
var ErrNoTruth = errors.New("validation: no truth labels for run")

// Summary is the machine-readable validation outcome.
type Summary struct {
	RunID                 string   `json:"run_id"`
	IncidentTypePrecision float64  `json:"incident_type_precision"`
	IncidentTypeRecall    float64  `json:"incident_type_recall"`
	RankingScore          float64  `json:"ranking_score"`
	ClusterDetected       bool     `json:"cluster_detected"`
	SchemaErrors          []string `json:"schema_errors"`
	ScenarioWarnings      []string `json:"scenario_warnings"`
}

// Run scores runID against its truth labels and writes the validation
// report pair into the run directory. The schema validator runs first so
// the report includes any structural violations. Returns ErrNoTruth when
// the run carries no truth.json.
func Run(ctx context.Context, validator *schemavalidate.Validator, store artifactstore.Store, runID string) (Summary, error) {
	schemaErrors := schemavalidate.ValidateRun(ctx, validator, store, runID)

	truthText, err := store.ReadText(ctx, incident.TruthKey(runID))
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return Summary{}, ErrNoTruth
		}
		return Summary{}, fmt.Errorf("read truth labels: %w", err)
	}
	var truth incident.Truth
	if err := json.Unmarshal([]byte(truthText), &truth); err != nil {
		return Summary{}, fmt.Errorf("parse truth labels: %w", err)
	}

	fleetText, err := store.ReadText(ctx, incident.FleetSummaryKey(runID))
	if err != nil {
		return Summary{}, fmt.Errorf("read fleet summary: %w", err)
	}
	var fleet incident.FleetSummary
	if err := json.Unmarshal([]byte(fleetText), &fleet); err != nil {
		return Summary{}, fmt.Errorf("parse fleet summary: %w", err)
	}

	detected, err := collectDetectedTypes(ctx, store, runID)
	if err != nil {
		return Summary{}, err
	}

	precision, recall := precisionRecall(truth.ExpectsIncidentTypes, detected)
	summary := Summary{
		RunID:                 runID,
		IncidentTypePrecision: precision,
		IncidentTypeRecall:    recall,
		RankingScore:          rankingHits(fleet.TopHosts, truth.ExpectedTopHosts),
		ClusterDetected:       clusterHit(fleet.Clusters),
		SchemaErrors:          schemaErrors,
		ScenarioWarnings:      scenarioChecks(ctx, store, runID, truth, fleet),
	}

	report := renderReport(truth, fleet, summary)
	if err := store.WriteText(ctx, incident.ValidationReportKey(runID), report); err != nil {
		return Summary{}, fmt.Errorf("write validation report: %w", err)
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return Summary{}, err
	}
	if err := store.WriteBytes(ctx, incident.ValidationSummaryKey(runID), summaryBytes); err != nil {
		return Summary{}, fmt.Errorf("write validation summary: %w", err)
	}
	shadowlog.Stage(ctx, store, runID, "validation", map[string]any{
		"precision":     summary.IncidentTypePrecision,
		"recall":        summary.IncidentTypeRecall,
		"ranking_score": summary.RankingScore,
		"schema_errors": len(summary.SchemaErrors),
	})

	if len(schemaErrors) > 0 {
		return summary, fmt.Errorf("schema validation failed: %s", strings.Join(schemaErrors, "; "))
	}
	return summary, nil
}

// collectDetectedTypes reads every host timeline under the run and
// gathers the set of incident types the detectors emitted.
func collectDetectedTypes(ctx context.Context, store artifactstore.Store, runID string) (map[string]bool, error) {
	detected := map[string]bool{}
	keys, err := store.List(ctx, runID+"/hosts")
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return detected, nil
		}
		return nil, fmt.Errorf("list host timelines: %w", err)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, "timeline.json") {
			continue
		}
		data, err := store.ReadBytes(ctx, key)
		if err != nil {
			continue
		}
		var timeline incident.HostTimeline
		if err := json.Unmarshal(data, &timeline); err != nil {
			continue
		}
		for _, inc := range timeline.Incidents {
			if inc.Type != "" {
				detected[inc.Type] = true
			}
		}
	}
	return detected, nil
}

func precisionRecall(expected []string, detected map[string]bool) (precision, recall float64) {
	if len(expected) == 0 {
		return 1, 1
	}
	truth := map[string]bool{}
	for _, t := range expected {
		truth[t] = true
	}
	tp := 0
	for t := range detected {
		if truth[t] {
			tp++
		}
	}
	denomP := len(detected)
	if denomP < 1 {
		denomP = 1
	}
	denomR := len(truth)
	if denomR < 1 {
		denomR = 1
	}
	return float64(tp) / float64(denomP), float64(tp) / float64(denomR)
}

// rankingHits is the fraction of expected top hosts that appear in the
// first len(expected) entries of the observed ranking.
func rankingHits(topHosts []incident.TopHost, expected []string) float64 {
	if len(expected) == 0 {
		return 1
	}
	limit := len(expected)
	if limit > len(topHosts) {
		limit = len(topHosts)
	}
	observed := map[string]bool{}
	for _, h := range topHosts[:limit] {
		observed[h.HostID] = true
	}
	hits := 0
	for _, host := range expected {
		if observed[host] {
			hits++
		}
	}
	return float64(hits) / float64(len(expected))
}

func clusterHit(clusters []incident.Cluster) bool {
	for _, c := range clusters {
		if c.AffectedHosts >= 2 {
			return true
		}
	}
	return false
}

func scenarioChecks(ctx context.Context, store artifactstore.Store, runID string, truth incident.Truth, fleet incident.FleetSummary) []string {
	tags := map[string]bool{}
	for _, t := range truth.ScenarioTags {
		tags[t] = true
	}
	var warnings []string
	if tags["driver_rollout_wave"] && !clusterHit(fleet.Clusters) {
		warnings = append(warnings, "expected clustered outage but none detected")
	}
	if tags["missing_data"] && fleet.HostCount == 0 {
		warnings = append(warnings, "missing_data scenario resulted in zero hosts (unexpected)")
	}
	if tags["time_skew"] {
		hosts := map[string]bool{}
		keys, err := store.List(ctx, incident.SnapshotsPrefix(runID))
		if err == nil {
			for _, key := range keys {
				if !strings.HasSuffix(key, ".json") {
					continue
				}
				parts := strings.Split(key, "/")
				if len(parts) >= 2 {
					hosts[parts[len(parts)-2]] = true
				}
			}
		}
		if fleet.HostCount != len(hosts) {
			warnings = append(warnings, "time_skew scenario host count mismatch")
		}
	}
	return warnings
}

func renderReport(truth incident.Truth, fleet incident.FleetSummary, s Summary) string {
	topHostIDs := make([]string, 0, len(fleet.TopHosts))
	for _, h := range fleet.TopHosts {
		topHostIDs = append(topHostIDs, h.HostID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Validation report for run %s\n\n", s.RunID)
	b.WriteString("## Schema\n")
	fmt.Fprintf(&b, "- Schema errors: %d\n\n", len(s.SchemaErrors))
	b.WriteString("## Scores\n")
	fmt.Fprintf(&b, "- Incident type precision: %.2f\n", s.IncidentTypePrecision)
	fmt.Fprintf(&b, "- Incident type recall: %.2f\n", s.IncidentTypeRecall)
	fmt.Fprintf(&b, "- Ranking quality (hit rate): %.2f\n", s.RankingScore)
	fmt.Fprintf(&b, "- Cluster detected: %s\n\n", yesNo(s.ClusterDetected))
	b.WriteString("## Truth labels\n")
	fmt.Fprintf(&b, "- Expected types: %s\n", strings.Join(sortedCopy(truth.ExpectsIncidentTypes), ", "))
	fmt.Fprintf(&b, "- Expects clustered outage: %v\n", truth.ExpectsClusteredOutage)
	fmt.Fprintf(&b, "- Expected top hosts: %s\n", strings.Join(truth.ExpectedTopHosts, ", "))
	fmt.Fprintf(&b, "- Scenario tags: %s\n\n", strings.Join(truth.ScenarioTags, ", "))
	b.WriteString("## Fleet summary snapshot\n")
	fmt.Fprintf(&b, "- Host count: %d\n", fleet.HostCount)
	fmt.Fprintf(&b, "- Incident count: %d\n", fleet.IncidentCount)
	fmt.Fprintf(&b, "- Clusters detected: %d\n", len(fleet.Clusters))
	fmt.Fprintf(&b, "- Top hosts seen: %s\n", strings.Join(topHostIDs, ", "))
	if len(s.SchemaErrors) > 0 {
		b.WriteString("\n## Schema errors\n")
		for _, e := range s.SchemaErrors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	if len(s.ScenarioWarnings) > 0 {
		b.WriteString("\n## Scenario warnings\n")
		for _, w := range s.ScenarioWarnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func sortedCopy(vals []string) []string {
	out := append([]string(nil), vals...)
	sort.Strings(out)
	return out
}
