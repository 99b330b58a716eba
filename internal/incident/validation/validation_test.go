package validation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
	"github.com/alleyfoo/puhemies-fleet/internal/schemavalidate"
)

func newStore(t *testing.T) *artifactstore.LocalStore {
	t.Helper()
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func writeArtifact(t *testing.T, store artifactstore.Store, key string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	if err := store.WriteBytes(context.Background(), key, data); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
}

func bsodTimeline(hostID string) incident.HostTimeline {
	return incident.HostTimeline{
		HostID: hostID,
		Window: incident.Window{Start: "2026-01-01T00:00:00Z", End: "2026-01-01T01:00:00Z"},
		Incidents: []incident.Incident{{
			ID:            "inc-1",
			Type:          incident.TypeBSOD,
			Severity:      85,
			Confidence:    0.75,
			SignatureKey:  "BugCheck:1001|bugcheck 0x<n>e",
			SignatureHash: "abcdefabcdef",
			Evidence: []incident.EvidenceEvent{{
				TS: "2026-01-01T01:00:00Z", Provider: "BugCheck", Level: "Error", Message: "BugCheck 0x0000007e",
			}},
			Window: incident.Window{Start: "2026-01-01T01:00:00Z", End: "2026-01-01T01:00:00Z"},
		}},
		Severity: 85,
	}
}

func TestRunScoresDetectionAgainstTruth(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	runID := "run1"

	writeArtifact(t, store, incident.HostTimelineKey(runID, "hostA"), bsodTimeline("hostA"))
	writeArtifact(t, store, incident.FleetSummaryKey(runID), incident.FleetSummary{
		Window:           incident.Window{Start: "2026-01-01T00:00:00Z", End: "2026-01-01T01:00:00Z"},
		OverallRiskScore: 87,
		HostCount:        1,
		IncidentCount:    1,
		Clusters: []incident.Cluster{{
			SignatureHash: "abcdefabcdef",
			SignatureKey:  "BugCheck:1001|bugcheck 0x<n>e",
			Type:          incident.TypeBSOD,
			AffectedHosts: 1,
			ExampleHosts:  []string{"hostA"},
			Severity:      85,
			Status:        "new",
		}},
		TopHosts: []incident.TopHost{{HostID: "hostA", Score: 85, IncidentCount: 1, Action: "contact"}},
	})
	writeArtifact(t, store, incident.TruthKey(runID), incident.Truth{
		ExpectsIncidentTypes: []string{incident.TypeBSOD},
		ExpectedTopHosts:     []string{"hostA"},
	})

	v, err := schemavalidate.New()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	summary, err := Run(ctx, v, store, runID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.IncidentTypePrecision != 1 || summary.IncidentTypeRecall != 1 {
		t.Fatalf("expected perfect precision/recall, got %v/%v", summary.IncidentTypePrecision, summary.IncidentTypeRecall)
	}
	if summary.RankingScore != 1 {
		t.Fatalf("expected ranking score 1, got %v", summary.RankingScore)
	}
	if summary.ClusterDetected {
		t.Fatalf("single-host cluster should not count as a clustered outage")
	}

	report, err := store.ReadText(ctx, incident.ValidationReportKey(runID))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(report, "Incident type precision: 1.00") {
		t.Fatalf("report missing precision line:\n%s", report)
	}
	if exists, _ := store.Exists(ctx, incident.ValidationSummaryKey(runID)); !exists {
		t.Fatalf("expected validation_summary.json to be written")
	}
}

func TestRunReturnsErrNoTruthWithoutLabels(t *testing.T) {
	store := newStore(t)
	runID := "run2"
	writeArtifact(t, store, incident.FleetSummaryKey(runID), incident.FleetSummary{
		Window: incident.Window{Start: "2026-01-01T00:00:00Z", End: "2026-01-01T01:00:00Z"},
	})

	v, err := schemavalidate.New()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	if _, err := Run(context.Background(), v, store, runID); !errors.Is(err, ErrNoTruth) {
		t.Fatalf("expected ErrNoTruth, got %v", err)
	}
}

func TestRunWarnsWhenExpectedClusterMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	runID := "run3"

	writeArtifact(t, store, incident.HostTimelineKey(runID, "hostA"), bsodTimeline("hostA"))
	writeArtifact(t, store, incident.FleetSummaryKey(runID), incident.FleetSummary{
		Window:    incident.Window{Start: "2026-01-01T00:00:00Z", End: "2026-01-01T01:00:00Z"},
		HostCount: 1,
		Clusters:  []incident.Cluster{},
		TopHosts:  []incident.TopHost{{HostID: "hostA", Score: 85, Action: "contact"}},
	})
	writeArtifact(t, store, incident.TruthKey(runID), incident.Truth{
		ExpectsIncidentTypes:   []string{incident.TypeBSOD},
		ExpectsClusteredOutage: true,
		ScenarioTags:           []string{"driver_rollout_wave"},
	})

	v, err := schemavalidate.New()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	summary, err := Run(ctx, v, store, runID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.ScenarioWarnings) != 1 {
		t.Fatalf("expected one scenario warning, got %v", summary.ScenarioWarnings)
	}
}
