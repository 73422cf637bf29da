// Package voterindex resolves a presented VIN and claimed polling unit to at
// most one registered voter. The index is read-only after construction: it is
// built once from the bulk registry load and never mutated by accreditation.
package voterindex

import (
	"context"
	"strings"

	dErrors "accredo/pkg/domain-errors"
)

// suffixLen is the length of a truncated "last digits" VIN capture. Shorter
// inputs are too ambiguous to resolve.
const suffixLen = 6

// VoterRecord is read-only reference data for one registrant.
type VoterRecord struct {
	VIN         string
	FullName    string
	PollingUnit string
	Ward        string
	LGA         string
	DateOfBirth string
}

// TieBreak selects the behavior when a VIN suffix matches several registrants
// in the same polling unit.
type TieBreak int

const (
	// TieBreakFirstRegistered returns the earliest record in registry
	// insertion order. Deterministic, matches the original data load order.
	TieBreakFirstRegistered TieBreak = iota
	// TieBreakReject refuses to guess and returns an ambiguous-match error.
	TieBreakReject
)

// Index holds the registry with exact and suffix lookup structures.
// Safe for concurrent reads without locking; never written after New.
type Index struct {
	records  []VoterRecord
	byVIN    map[string]int
	bySuffix map[string][]int
	tieBreak TieBreak
}

// Option configures the Index.
type Option func(*Index)

// WithTieBreak sets the suffix-collision policy. Default is first-registered-wins.
func WithTieBreak(policy TieBreak) Option {
	return func(ix *Index) {
		ix.tieBreak = policy
	}
}

// New builds an index over the given records, preserving their order as the
// registration order used by the first-registered-wins policy. Records with an
// empty VIN are skipped; on duplicate VINs the first registration wins.
func New(records []VoterRecord, opts ...Option) *Index {
	ix := &Index{
		byVIN:    make(map[string]int, len(records)),
		bySuffix: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(ix)
	}

	for _, rec := range records {
		vin := strings.TrimSpace(rec.VIN)
		if vin == "" {
			continue
		}
		if _, dup := ix.byVIN[vin]; dup {
			continue
		}
		rec.VIN = vin
		pos := len(ix.records)
		ix.records = append(ix.records, rec)
		ix.byVIN[vin] = pos
		if len(vin) >= suffixLen {
			suffix := vin[len(vin)-suffixLen:]
			ix.bySuffix[suffix] = append(ix.bySuffix[suffix], pos)
		}
	}
	return ix
}

// Len reports the number of indexed registrants.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Resolve maps a presented VIN plus the claimed polling unit to at most one
// registrant. Full VINs (longer than six characters) must match exactly;
// six-character inputs match any VIN with that suffix. Both modes also require
// polling-unit equality. Pure read, no side effects.
func (ix *Index) Resolve(_ context.Context, vin, pollingUnit string) (VoterRecord, error) {
	vin = strings.TrimSpace(vin)
	pollingUnit = strings.TrimSpace(pollingUnit)

	if vin == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "vin must not be empty")
	}
	if pollingUnit == "" {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "polling unit must not be empty")
	}
	if len(vin) < suffixLen {
		return VoterRecord{}, dErrors.New(dErrors.CodeInvalidInput, "vin too short to disambiguate")
	}

	if len(vin) > suffixLen {
		pos, ok := ix.byVIN[vin]
		if !ok || ix.records[pos].PollingUnit != pollingUnit {
			return VoterRecord{}, dErrors.New(dErrors.CodeNotFound, "no registered voter matches vin and polling unit")
		}
		return ix.records[pos], nil
	}

	var matches []int
	for _, pos := range ix.bySuffix[vin] {
		if ix.records[pos].PollingUnit == pollingUnit {
			matches = append(matches, pos)
		}
	}
	switch {
	case len(matches) == 0:
		return VoterRecord{}, dErrors.New(dErrors.CodeNotFound, "no registered voter matches vin suffix and polling unit")
	case len(matches) > 1 && ix.tieBreak == TieBreakReject:
		return VoterRecord{}, dErrors.New(dErrors.CodeAmbiguousMatch, "vin suffix matches multiple registrants in this polling unit")
	default:
		// Suffix positions are appended in registration order, so the first
		// entry is the earliest registrant.
		return ix.records[matches[0]], nil
	}
}
