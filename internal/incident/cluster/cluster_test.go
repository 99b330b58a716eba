package cluster

import (
	"testing"

	"github.com/alleyfoo/puhemies-fleet/internal/incident"
)

func timelineWithIncident(hostID string, severity float64, sigHash, sigKey, incType string) incident.HostTimeline {
	return incident.HostTimeline{
		HostID:   hostID,
		Window:   incident.Window{Start: "2026-07-30T00:00:00Z", End: "2026-07-30T01:00:00Z"},
		Severity: severity,
		Incidents: []incident.Incident{
			{ID: "inc-" + hostID, Type: incType, Severity: severity, SignatureHash: sigHash, SignatureKey: sigKey,
				Window: incident.Window{Start: "2026-07-30T00:00:00Z", End: "2026-07-30T01:00:00Z"}},
		},
	}
}

func TestAggregateGroupsBySignatureHash(t *testing.T) {
	timelines := map[string]incident.HostTimeline{
		"hostA": timelineWithIncident("hostA", 80, "abc123", "svc:crash", incident.TypeServiceCrashLoop),
		"hostB": timelineWithIncident("hostB", 70, "abc123", "svc:crash", incident.TypeServiceCrashLoop),
	}
	summary := Aggregate(timelines, nil)
	if len(summary.Clusters) != 1 {
		t.Fatalf("expected a single cluster for matching signature hashes, got %d", len(summary.Clusters))
	}
	c := summary.Clusters[0]
	if c.AffectedHosts != 2 {
		t.Fatalf("expected 2 affected hosts, got %d", c.AffectedHosts)
	}
	if c.Status != "new" {
		t.Fatalf("expected status 'new' with no prior history, got %q", c.Status)
	}
}

func TestAggregateSpikeStatusOnHostGrowth(t *testing.T) {
	prev := &incident.FleetSummary{
		Clusters: []incident.Cluster{{SignatureHash: "abc123", AffectedHosts: 1}},
	}
	timelines := map[string]incident.HostTimeline{
		"hostA": timelineWithIncident("hostA", 80, "abc123", "svc:crash", incident.TypeServiceCrashLoop),
		"hostB": timelineWithIncident("hostB", 70, "abc123", "svc:crash", incident.TypeServiceCrashLoop),
		"hostC": timelineWithIncident("hostC", 60, "abc123", "svc:crash", incident.TypeServiceCrashLoop),
	}
	summary := Aggregate(timelines, prev)
	if summary.Clusters[0].Status != "spiking" {
		t.Fatalf("expected status 'spiking' when affected hosts grows by >=2, got %q", summary.Clusters[0].Status)
	}
	if summary.Clusters[0].DeltaAffectedHosts == nil || *summary.Clusters[0].DeltaAffectedHosts != 2 {
		t.Fatalf("expected delta_affected_hosts=2, got %v", summary.Clusters[0].DeltaAffectedHosts)
	}
}

func TestRankTopHostsContactActionForNewCriticalCluster(t *testing.T) {
	timelines := map[string]incident.HostTimeline{
		"hostA": timelineWithIncident("hostA", 90, "bsodhash", "bsod:1", incident.TypeBSOD),
	}
	summary := Aggregate(timelines, nil)
	if len(summary.TopHosts) != 1 {
		t.Fatalf("expected one top host, got %d", len(summary.TopHosts))
	}
	if summary.TopHosts[0].Action != "contact" {
		t.Fatalf("expected contact action for new critical bsod cluster, got %q", summary.TopHosts[0].Action)
	}
}

func TestRankTopHostsIgnoreForLowSeverity(t *testing.T) {
	timelines := map[string]incident.HostTimeline{
		"hostA": {HostID: "hostA", Severity: 5},
	}
	summary := Aggregate(timelines, nil)
	if summary.TopHosts[0].Action != "ignore" {
		t.Fatalf("expected ignore action for low-severity host, got %q", summary.TopHosts[0].Action)
	}
}

func TestOverallRiskScoreBoundedAt100(t *testing.T) {
	timelines := map[string]incident.HostTimeline{}
	for _, h := range []string{"h1", "h2", "h3", "h4", "h5", "h6"} {
		timelines[h] = timelineWithIncident(h, 100, "sig-"+h, "k-"+h, incident.TypeBSOD)
	}
	summary := Aggregate(timelines, nil)
	if summary.OverallRiskScore > 100 {
		t.Fatalf("expected overall risk score capped at 100, got %v", summary.OverallRiskScore)
	}
}
