// File: internal/incident/detect/detect.go
// Brief: Rule-based incident detectors run over one host's event timeline.

// Package detect implements the five incident detectors: blue
// screen/unexpected shutdown, disk exhaustion, service crash loops,
// network instability, and update failures. Each detector inspects a
// host's chronological event list and emits at most one incident.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/alleyfoo/puhemies-fleet/internal/incident"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/redact"
)

const maxEvidenceMessageLen = 512

func hasTag(ev incident.Event, tags ...string) bool {
	for _, t := range ev.Tags {
		for _, want := range tags {
			if t == want {
				return true
			}
		}
	}
	return false
}

func sourceContains(ev incident.Event, substr string) bool {
	return strings.Contains(strings.ToLower(ev.Source), substr)
}

func providerContains(ev incident.Event, substr string) bool {
	return strings.Contains(strings.ToLower(ev.Provider), substr)
}

func signatureFor(ev incident.Event) (key, hash string) {
	template := redact.NormalizeMessageTemplate(ev.Message)
	eventID := fmt.Sprint(ev.EventID)
	key = fmt.Sprintf("%s:%s|%s", ev.Provider, eventID, template)
	sum := sha256.Sum256([]byte(ev.Provider + "|" + eventID + "|" + template))
	hash = hex.EncodeToString(sum[:])[:12]
	return key, hash
}

func cleanEvidence(events []incident.Event) []incident.EvidenceEvent {
	out := make([]incident.EvidenceEvent, 0, len(events))
	for _, ev := range events {
		message := ev.Message
		if len(message) > maxEvidenceMessageLen {
			message = message[:maxEvidenceMessageLen-3] + "..."
		}
		out = append(out, incident.EvidenceEvent{
			TS:       ev.TS,
			Provider: ev.Provider,
			Level:    ev.Level,
			Message:  message,
			EventID:  ev.EventID,
			Source:   ev.Source,
			RecordID: ev.RecordID,
		})
	}
	return out
}

func windowFor(events []incident.Event) incident.Window {
	if len(events) == 0 {
		return incident.Window{}
	}
	return incident.Window{Start: events[0].TS, End: events[len(events)-1].TS}
}

func buildIncident(incidentType string, evidence []incident.Event, severity, confidence float64) incident.Incident {
	key, hash := signatureFor(evidence[0])
	return incident.Incident{
		ID:            uuid.NewString(),
		Type:          incidentType,
		Severity:      severity,
		Confidence:    confidence,
		SignatureKey:  key,
		SignatureHash: hash,
		Evidence:      cleanEvidence(evidence),
		Window:        windowFor(evidence),
	}
}

func detectBSOD(events []incident.Event) *incident.Incident {
	var evidence []incident.Event
	for _, ev := range events {
		if hasTag(ev, "bsod", "unexpected_shutdown") {
			evidence = append(evidence, ev)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	severity := math.Min(100, 85+5*float64(n-1))
	confidence := 0.75
	if n > 1 {
		confidence = 0.9
	}
	inc := buildIncident(incident.TypeBSOD, evidence, severity, confidence)
	return &inc
}

func detectDiskFull(events []incident.Event) *incident.Incident {
	var evidence []incident.Event
	for _, ev := range events {
		if hasTag(ev, "disk_full") || sourceContains(ev, "disk") {
			evidence = append(evidence, ev)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	severity := math.Min(95, 70+5*float64(n-1))
	confidence := math.Min(0.95, 0.7+0.05*float64(n))
	inc := buildIncident(incident.TypeDiskFull, evidence, severity, confidence)
	return &inc
}

func detectServiceCrashLoop(events []incident.Event) *incident.Incident {
	var evidence []incident.Event
	for _, ev := range events {
		if hasTag(ev, "service_crash") || providerContains(ev, "service control manager") {
			evidence = append(evidence, ev)
		}
	}
	if len(evidence) < 2 {
		return nil
	}
	n := len(evidence)
	severity := math.Min(90, 65+5*math.Min(5, float64(n)))
	confidence := math.Min(0.95, 0.7+0.05*float64(n))
	inc := buildIncident(incident.TypeServiceCrashLoop, evidence, severity, confidence)
	return &inc
}

func detectNetworkInstability(events []incident.Event) *incident.Incident {
	var evidence []incident.Event
	for _, ev := range events {
		if hasTag(ev, "network_reset", "dns_failure") {
			evidence = append(evidence, ev)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	severity := math.Min(85, 55+5*math.Min(6, float64(n)))
	confidence := math.Min(0.9, 0.6+0.05*float64(n))
	inc := buildIncident(incident.TypeNetworkInstability, evidence, severity, confidence)
	return &inc
}

func detectUpdateFailure(events []incident.Event) *incident.Incident {
	var evidence []incident.Event
	for _, ev := range events {
		if hasTag(ev, "update_failure") || sourceContains(ev, "update") {
			evidence = append(evidence, ev)
		}
	}
	if len(evidence) == 0 {
		return nil
	}
	n := len(evidence)
	severity := math.Min(90, 65+5*math.Min(4, float64(n-1)))
	confidence := math.Min(0.9, 0.65+0.05*float64(n))
	inc := buildIncident(incident.TypeUpdateFailure, evidence, severity, confidence)
	return &inc
}

// All runs every detector over events, in the fixed order the original
// detection battery uses, and returns every incident that fired.
func All(events []incident.Event) []incident.Incident {
	detectors := []func([]incident.Event) *incident.Incident{
		detectBSOD,
		detectDiskFull,
		detectServiceCrashLoop,
		detectNetworkInstability,
		detectUpdateFailure,
	}
	var incidents []incident.Incident
	for _, detector := range detectors {
		if inc := detector(events); inc != nil {
			incidents = append(incidents, *inc)
		}
	}
	return incidents
}

// HostSeverity is the maximum severity across a host's incidents, or 0.
func HostSeverity(incidents []incident.Incident) float64 {
	max := 0.0
	for _, inc := range incidents {
		if inc.Severity > max {
			max = inc.Severity
		}
	}
	return max
}
