// File: internal/incident/cluster/cluster.go
// Brief: Signature clustering, host ranking, and fleet summary aggregation.

// Package cluster is a side-free aggregation step: it takes a run's host
// timelines plus the prior run's fleet summary and produces a new summary,
// without touching the artifact store itself.
package cluster

import (
	"math"
	"sort"

	"github.com/alleyfoo/puhemies-fleet/internal/incident"
)

const (
	maxExampleHosts  = 20
	maxTopHosts      = 10
	spikeThreshold   = 2
	contactScoreMin  = 70
	contactDeltaMin  = 5
	monitorScoreMin  = 50
	monitorDeltaMin  = 10
)

type clusterAccum struct {
	signatureHash string
	signatureKey  string
	incidentType  string
	hosts         map[string]bool
	severity      float64
	firstSeen     string
	lastSeen      string
}

// Aggregate groups incidents across timelines by signature hash, ranks
// hosts, and computes the overall fleet summary. prevSummary may be nil
// for a run with no prior history.
func Aggregate(timelines map[string]incident.HostTimeline, prevSummary *incident.FleetSummary) incident.FleetSummary {
	clusters := aggregateClusters(timelines)
	applyClusterStatus(clusters, prevSummary)
	topHosts := rankTopHosts(timelines)
	assignActions(topHosts, timelines, clusters, prevSummary)

	overall := 0.0
	if len(topHosts) > 0 {
		n := len(topHosts)
		if n > 5 {
			n = 5
		}
		sum := 0.0
		for _, h := range topHosts[:n] {
			sum += h.Score
		}
		overall = math.Min(100, sum/float64(n)+2*float64(len(clusters)))
	}

	window := windowFor(timelines)

	incidentCount := 0
	for _, timeline := range timelines {
		incidentCount += len(timeline.Incidents)
	}

	return incident.FleetSummary{
		Window:           window,
		OverallRiskScore: overall,
		HostCount:        len(timelines),
		IncidentCount:    incidentCount,
		Clusters:         clusters,
		TopHosts:         topHosts,
	}
}

func aggregateClusters(timelines map[string]incident.HostTimeline) []incident.Cluster {
	accum := map[string]*clusterAccum{}
	hostIDs := sortedHostIDs(timelines)
	for _, hostID := range hostIDs {
		timeline := timelines[hostID]
		for _, inc := range timeline.Incidents {
			if inc.SignatureHash == "" {
				continue
			}
			a, ok := accum[inc.SignatureHash]
			if !ok {
				a = &clusterAccum{
					signatureHash: inc.SignatureHash,
					signatureKey:  inc.SignatureKey,
					incidentType:  inc.Type,
					hosts:         map[string]bool{},
				}
				accum[inc.SignatureHash] = a
			}
			a.hosts[hostID] = true
			if inc.Severity > a.severity {
				a.severity = inc.Severity
			}
			if a.firstSeen == "" || inc.Window.Start < a.firstSeen {
				a.firstSeen = inc.Window.Start
			}
			if a.lastSeen == "" || inc.Window.End > a.lastSeen {
				a.lastSeen = inc.Window.End
			}
		}
	}

	clusters := make([]incident.Cluster, 0, len(accum))
	for _, a := range accum {
		hosts := make([]string, 0, len(a.hosts))
		for h := range a.hosts {
			hosts = append(hosts, h)
		}
		sort.Strings(hosts)
		example := hosts
		if len(example) > maxExampleHosts {
			example = example[:maxExampleHosts]
		}
		severity := math.Min(100, a.severity+5*float64(len(hosts)-1))
		clusters = append(clusters, incident.Cluster{
			SignatureHash: a.signatureHash,
			SignatureKey:  a.signatureKey,
			Type:          a.incidentType,
			AffectedHosts: len(hosts),
			ExampleHosts:  example,
			Severity:      severity,
			FirstSeen:     a.firstSeen,
			LastSeen:      a.lastSeen,
		})
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Severity != clusters[j].Severity {
			return clusters[i].Severity > clusters[j].Severity
		}
		return clusters[i].AffectedHosts > clusters[j].AffectedHosts
	})
	return clusters
}

func applyClusterStatus(clusters []incident.Cluster, prevSummary *incident.FleetSummary) {
	var prevByHash map[string]incident.Cluster
	if prevSummary != nil {
		prevByHash = make(map[string]incident.Cluster, len(prevSummary.Clusters))
		for _, c := range prevSummary.Clusters {
			prevByHash[c.SignatureHash] = c
		}
	}
	for i := range clusters {
		prev, ok := prevByHash[clusters[i].SignatureHash]
		if !ok {
			clusters[i].Status = "new"
			clusters[i].DeltaAffectedHosts = nil
			continue
		}
		delta := clusters[i].AffectedHosts - prev.AffectedHosts
		clusters[i].DeltaAffectedHosts = &delta
		if delta >= spikeThreshold {
			clusters[i].Status = "spiking"
		} else {
			clusters[i].Status = "ongoing"
		}
	}
}

func rankTopHosts(timelines map[string]incident.HostTimeline) []incident.TopHost {
	hosts := make([]incident.TopHost, 0, len(timelines))
	for _, hostID := range sortedHostIDs(timelines) {
		timeline := timelines[hostID]
		hosts = append(hosts, incident.TopHost{
			HostID:        hostID,
			Score:         timeline.Severity,
			IncidentCount: len(timeline.Incidents),
		})
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Score != hosts[j].Score {
			return hosts[i].Score > hosts[j].Score
		}
		return hosts[i].IncidentCount > hosts[j].IncidentCount
	})
	if len(hosts) > maxTopHosts {
		hosts = hosts[:maxTopHosts]
	}
	return hosts
}

func assignActions(topHosts []incident.TopHost, timelines map[string]incident.HostTimeline, clusters []incident.Cluster, prevSummary *incident.FleetSummary) {
	clusterByHash := make(map[string]incident.Cluster, len(clusters))
	for _, c := range clusters {
		clusterByHash[c.SignatureHash] = c
	}
	prevScores := map[string]float64{}
	if prevSummary != nil {
		for _, h := range prevSummary.TopHosts {
			prevScores[h.HostID] = h.Score
		}
	}

	for i := range topHosts {
		host := &topHosts[i]
		timeline := timelines[host.HostID]
		hasSpike := false
		hasNewCritical := false
		for _, inc := range timeline.Incidents {
			c, ok := clusterByHash[inc.SignatureHash]
			if !ok {
				continue
			}
			if c.Status == "spiking" {
				hasSpike = true
			}
			if c.Status == "new" && isCriticalType(inc.Type) {
				hasNewCritical = true
			}
		}
		prevScore, hadPrev := prevScores[host.HostID]
		var delta *float64
		if hadPrev {
			d := host.Score - prevScore
			delta = &d
		}
		host.DeltaScore = delta

		switch {
		case hasSpike || hasNewCritical || (host.Score >= contactScoreMin && (!hadPrev || (delta != nil && *delta >= contactDeltaMin))):
			host.Action = "contact"
		case host.Score >= monitorScoreMin || (delta != nil && *delta >= monitorDeltaMin):
			host.Action = "monitor"
		default:
			host.Action = "ignore"
		}
	}
}

func isCriticalType(t string) bool {
	return t == incident.TypeBSOD
}

func windowFor(timelines map[string]incident.HostTimeline) incident.Window {
	var start, end string
	for _, timeline := range timelines {
		w := timeline.Window
		if w.Start != "" && (start == "" || w.Start < start) {
			start = w.Start
		}
		if w.End != "" && (end == "" || w.End > end) {
			end = w.End
		}
	}
	return incident.Window{Start: start, End: end}
}

func sortedHostIDs(timelines map[string]incident.HostTimeline) []string {
	ids := make([]string, 0, len(timelines))
	for id := range timelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
