// Package export builds evidence packs: checksummed zip bundles of a
// company's ledger commits and the governance events drained from the
// in-process log. The event log itself is not durable, so draining into a
// pack and shipping it to object storage is how audit trails persist.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ordgate/core/pkg/canonicalize"
	"github.com/ordgate/core/pkg/events"
	"github.com/ordgate/core/pkg/ledger"
)

var (
	// ErrEmptyCompanyID is returned when the company ID is empty.
	ErrEmptyCompanyID = errors.New("export: company_id must not be empty")
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("export: start_time must be before end_time")
	// ErrLedgerNotConfigured is returned when export is invoked without a ledger.
	ErrLedgerNotConfigured = errors.New("export: ledger not configured (fail-closed)")
)

// Request defines what to export.
type Request struct {
	CompanyID string    `json:"company_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Pack is the result of a pack generation.
type Pack struct {
	PackID      string    `json:"pack_id"`
	CompanyID   string    `json:"company_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Checksum    string    `json:"checksum"`
	EventCount  int       `json:"event_count"`
	CommitCount int       `json:"commit_count"`
	Data        []byte    `json:"-"`
}

// Exporter assembles evidence packs from the ledger and the event log.
type Exporter struct {
	ledger *ledger.Ledger
	log    *events.Log
	clock  func() time.Time
}

// NewExporter creates an exporter over the given ledger and event log.
func NewExporter(l *ledger.Ledger, log *events.Log) *Exporter {
	return &Exporter{ledger: l, log: log, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// GeneratePack builds a zip containing the company's commits, the current
// event log snapshot and a manifest, and returns it with its checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req Request) (*Pack, error) {
	if req.CompanyID == "" {
		return nil, ErrEmptyCompanyID
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, ErrInvalidTimeRange
	}
	if e.ledger == nil {
		return nil, ErrLedgerNotConfigured
	}

	commits, err := e.ledger.ListCommits(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("export: list commits: %w", err)
	}
	// Verify before shipping: a pack asserting chain integrity it does not
	// have would be worse than no pack.
	if err := e.ledger.VerifyChain(ctx, req.CompanyID); err != nil {
		return nil, fmt.Errorf("export: chain verification: %w", err)
	}

	var evts []events.Event
	if e.log != nil {
		for _, ev := range e.log.Snapshot() {
			if inWindow(ev.EmittedAt, req.StartTime, req.EndTime) {
				evts = append(evts, ev)
			}
		}
	}

	now := e.clock().UTC()
	packID := uuid.NewString()

	commitsJSON, err := json.MarshalIndent(commits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal commits: %w", err)
	}
	eventsJSON, err := json.MarshalIndent(evts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal events: %w", err)
	}

	chainHead := ""
	if len(commits) > 0 {
		chainHead = commits[len(commits)-1].ChainHash
	}
	manifest := map[string]any{
		"pack_id":      packID,
		"company_id":   req.CompanyID,
		"generated_at": now,
		"event_count":  len(evts),
		"commit_count": len(commits),
		"chain_head":   chainHead,
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	for _, entry := range []struct {
		name string
		data []byte
	}{
		{"commits.json", commitsJSON},
		{"events.json", eventsJSON},
		{"manifest.json", manifestJSON},
	} {
		f, err := w.Create(entry.name)
		if err != nil {
			return nil, fmt.Errorf("export: zip entry %s: %w", entry.name, err)
		}
		if _, err := f.Write(entry.data); err != nil {
			return nil, fmt.Errorf("export: write %s: %w", entry.name, err)
		}
	}

	f, err := w.Create("README.txt")
	if err != nil {
		return nil, fmt.Errorf("export: zip entry README.txt: %w", err)
	}
	if _, err := fmt.Fprintf(f, "Evidence pack %s for company %s\nGenerated at %s\n",
		packID, req.CompanyID, now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("export: write README.txt: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("export: close zip: %w", err)
	}

	zipBytes := buf.Bytes()
	return &Pack{
		PackID:      packID,
		CompanyID:   req.CompanyID,
		GeneratedAt: now,
		Checksum:    canonicalize.HashBytes(zipBytes),
		EventCount:  len(evts),
		CommitCount: len(commits),
		Data:        zipBytes,
	}, nil
}

func inWindow(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
