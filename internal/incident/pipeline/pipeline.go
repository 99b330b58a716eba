// File: internal/incident/pipeline/pipeline.go
// Brief: Per-host redact/detect pipeline bounded by a worker pool.

// Package pipeline turns selected snapshots and tickets into redacted,
// detected host timelines, processing hosts concurrently under a fixed
// worker cap.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/config"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/detect"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/redact"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/snapshot"
)

const maxWorkers = 8

// Build loads the tickets under ticketPrefix, then processes every loaded
// snapshot concurrently (bounded by maxWorkers), returning a host timeline
// per host_id.
func Build(ctx context.Context, store artifactstore.Store, runID, ticketPrefix string, mode config.RedactionMode, salt string, loaded []snapshot.Loaded) (map[string]incident.HostTimeline, error) {
	tickets, err := loadTickets(ctx, store, ticketPrefix)
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}

	byHost := groupByHost(loaded)
	hostIDs := make([]string, 0, len(byHost))
	for hostID := range byHost {
		hostIDs = append(hostIDs, hostID)
	}
	sort.Strings(hostIDs)

	var mu sync.Mutex
	result := make(map[string]incident.HostTimeline, len(hostIDs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxWorkers)

	for _, hostID := range hostIDs {
		hostID := hostID
		entries := byHost[hostID]
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			timeline := buildHostTimeline(hostID, entries, tickets[hostID], mode, salt)
			mu.Lock()
			result[hostID] = timeline
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildHostTimeline(hostID string, entries []snapshot.Loaded, tickets []incident.Ticket, mode config.RedactionMode, salt string) incident.HostTimeline {
	var events []incident.Event
	var userID *string
	for _, entry := range entries {
		if entry.Data.UserID != nil {
			userID = entry.Data.UserID
		}
		events = append(events, entry.Data.Events...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TS < events[j].TS })

	redacted := make([]incident.Event, len(events))
	for i, ev := range events {
		ev.Message = redact.Message(mode, ev.Message)
		redacted[i] = ev
	}
	if userID != nil {
		hashed := redact.HashUser(mode, salt, *userID)
		userID = &hashed
	}

	incidents := detect.All(redacted)
	severity := detect.HostSeverity(incidents)

	var window incident.Window
	if len(redacted) > 0 {
		window = incident.Window{Start: redacted[0].TS, End: redacted[len(redacted)-1].TS}
	}
	lastEventTS := ""
	if len(redacted) > 0 {
		lastEventTS = redacted[len(redacted)-1].TS
	}

	return incident.HostTimeline{
		HostID:      hostID,
		UserID:      userID,
		Window:      window,
		Events:      redacted,
		Incidents:   incidents,
		Tickets:     tickets,
		LastEventTS: lastEventTS,
		Severity:    severity,
	}
}

func groupByHost(loaded []snapshot.Loaded) map[string][]snapshot.Loaded {
	byHost := map[string][]snapshot.Loaded{}
	for _, l := range loaded {
		hostID := l.Data.HostID
		if hostID == "" {
			continue
		}
		byHost[hostID] = append(byHost[hostID], l)
	}
	return byHost
}

func loadTickets(ctx context.Context, store artifactstore.Store, prefix string) (map[string][]incident.Ticket, error) {
	result := map[string][]incident.Ticket{}
	if prefix == "" {
		return result, nil
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return result, nil
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := store.ReadBytes(ctx, key)
		if err != nil {
			continue
		}
		var ticket incident.Ticket
		if err := json.Unmarshal(data, &ticket); err != nil {
			continue
		}
		if ticket.HostID == "" {
			continue
		}
		result[ticket.HostID] = append(result[ticket.HostID], ticket)
	}
	return result, nil
}
