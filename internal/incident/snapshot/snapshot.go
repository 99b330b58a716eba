// File: internal/incident/snapshot/snapshot.go
// Brief: Selects in-window per-host snapshots for the incident pipeline.

// Package snapshot enumerates and selects per-host event snapshots from
// the artifact store, applying the structural host-id/filename pattern,
// the selection window, and the latest-vs-all selection mode.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
)

var (
	hostIDRe   = regexp.MustCompile(`^[A-Za-z0-9._:-]{3,64}$`)
	fileNameRe = regexp.MustCompile(`^snapshot-\d{8}T\d{6}Z\.json$`)
)

// Loaded is one selected snapshot along with the store key it came from.
type Loaded struct {
	Key     string
	Data    incident.Snapshot
	EndTime time.Time
}

// Load enumerates keys under prefix (defaulting to "<runID>/snapshots"),
// keeps only those ending within windowHours of now, groups by host_id,
// and applies selectMode ("latest" or "all") plus an optional maxHosts cap
// ordered by host_id.
func Load(ctx context.Context, store artifactstore.Store, runID, prefix string, windowHours int, selectMode string, maxHosts int) ([]Loaded, error) {
	if prefix == "" {
		prefix = incident.SnapshotsPrefix(runID)
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots under %q: %w", prefix, err)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	perHost := map[string][]Loaded{}

	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) < 2 {
			continue
		}
		hostFromPath := parts[len(parts)-2]
		filename := parts[len(parts)-1]
		if !hostIDRe.MatchString(hostFromPath) || !fileNameRe.MatchString(filename) {
			continue
		}
		data, err := store.ReadBytes(ctx, key)
		if err != nil {
			continue
		}
		var snap incident.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		hostID := snap.HostID
		if hostID == "" {
			hostID = hostFromPath
		}
		endTime, err := parseTimestamp(snap.Window.End)
		if err != nil {
			continue
		}
		if endTime.Before(cutoff) {
			continue
		}
		perHost[hostID] = append(perHost[hostID], Loaded{Key: key, Data: snap, EndTime: endTime})
	}

	hostIDs := make([]string, 0, len(perHost))
	for hostID := range perHost {
		hostIDs = append(hostIDs, hostID)
	}
	sort.Strings(hostIDs)
	if maxHosts > 0 && len(hostIDs) > maxHosts {
		hostIDs = hostIDs[:maxHosts]
	}

	var selected []Loaded
	for _, hostID := range hostIDs {
		items := perHost[hostID]
		sort.Slice(items, func(i, j int) bool { return items[i].EndTime.After(items[j].EndTime) })
		if selectMode == "latest" {
			if len(items) > 0 {
				selected = append(selected, items[0])
			}
			continue
		}
		selected = append(selected, items...)
	}
	return selected, nil
}

func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, ts)
}
