// Package session drives one bill split from receipt to summary and serves
// sessions over HTTP.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-splitter/internal/metrics"
	"github.com/zombor/receipt-splitter/internal/scanning"
	"github.com/zombor/receipt-splitter/internal/split"
)

// IDGenerator generates unique IDs for sessions and participants
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds the settings shared by every session
type Config struct {
	// OwnerName labels the owner participant. Empty means split.DefaultOwnerName.
	OwnerName string

	// DropInvalidLines drops lines with a bad price instead of rejecting
	// the whole receipt.
	DropInvalidLines bool

	// Metrics may be nil.
	Metrics *metrics.Recorder
}

// Session is one bill split. All commands are safe for concurrent use; each
// runs under the session's mutex.
type Session struct {
	mu sync.Mutex

	id          string
	scanner     scanning.Scanner
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource

	phase    Phase
	merchant string
	items    []split.Item
	store    *split.Store

	// scanning is set while Ingest waits on the scanner without the lock.
	// generation is bumped by Reset so a scan that outlives it is discarded.
	scanning   bool
	generation uint64

	createdAt  time.Time
	lastActive time.Time
}

// New creates a session with default ID generator and time source
func New(id string, scanner scanning.Scanner, config Config) *Session {
	return NewWithDeps(id, scanner, config, &uuidGenerator{}, &defaultTimeSource{})
}

// NewWithDeps creates a session with custom dependencies for testing
func NewWithDeps(id string, scanner scanning.Scanner, config Config, idGen IDGenerator, timeSrc TimeSource) *Session {
	now := timeSrc.Now()
	return &Session{
		id:          id,
		scanner:     scanner,
		config:      config,
		idGenerator: idGen,
		timeSource:  timeSrc,
		phase:       PhaseIngest,
		createdAt:   now,
		lastActive:  now,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) touch() {
	s.lastActive = s.timeSource.Now()
}

// idleSince reports how long the session has been untouched at now. A scan
// in flight counts as activity.
func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return 0
	}
	return now.Sub(s.lastActive)
}

func (s *Session) requirePhase(command string, phases ...Phase) error {
	for _, p := range phases {
		if s.phase == p {
			return nil
		}
	}
	return phaseError(command, s.phase)
}

// Ingest scans a receipt image and turns its lines into items. The scan runs
// without holding the session lock; the phase is checked again before the
// items are applied.
func (s *Session) Ingest(ctx context.Context, receipt []byte, contentType string) ([]split.Item, error) {
	s.mu.Lock()
	if err := s.requirePhase("ingest", PhaseIngest); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.scanning {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: a receipt scan is already in progress", ErrInvalidPhase)
	}
	if s.scanner == nil {
		s.mu.Unlock()
		return nil, ErrScannerUnavailable
	}
	s.scanning = true
	generation := s.generation
	s.touch()
	s.mu.Unlock()

	start := time.Now()
	data, scanErr := s.scanner.ScanReceipt(ctx, receipt, contentType)
	s.config.Metrics.ScanObserved(time.Since(start), scanErr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		s.scanning = false
	}
	s.touch()

	if scanErr != nil {
		slog.Error("Error scanning receipt", "session_id", s.id, "error", scanErr)
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, scanErr)
	}
	if s.generation != generation {
		return nil, fmt.Errorf("%w: session was reset during the scan", ErrInvalidPhase)
	}
	if err := s.requirePhase("ingest", PhaseIngest); err != nil {
		return nil, err
	}

	lines := make([]split.RawLine, len(data.Items))
	for i, item := range data.Items {
		lines[i] = split.RawLine{Name: item.Name, UnitPrice: item.Price}
	}

	items, err := s.applyLines(lines, metrics.SourceScan)
	if err != nil {
		return nil, err
	}
	s.merchant = data.Merchant
	return items, nil
}

// IngestLines accepts lines that were already extracted, for example typed
// in by hand.
func (s *Session) IngestLines(lines []split.RawLine) ([]split.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.requirePhase("ingest", PhaseIngest); err != nil {
		return nil, err
	}
	if s.scanning {
		return nil, fmt.Errorf("%w: a receipt scan is already in progress", ErrInvalidPhase)
	}
	return s.applyLines(lines, metrics.SourceLines)
}

// applyLines normalizes lines and moves to the roster phase. Callers hold
// the lock.
func (s *Session) applyLines(lines []split.RawLine, source string) ([]split.Item, error) {
	var (
		items   []split.Item
		dropped []error
		err     error
	)

	if s.config.DropInvalidLines {
		items, dropped = split.NormalizeLenient(lines)
		for _, lineErr := range dropped {
			slog.Warn("Dropping receipt line", "session_id", s.id, "error", lineErr)
		}
	} else {
		items, err = split.Normalize(lines)
		if err != nil {
			return nil, err
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no usable line items in %d lines", split.ErrEmptyReceipt, len(lines))
	}

	s.items = items
	s.phase = PhaseRoster
	s.config.Metrics.ReceiptIngested(source, len(items), len(dropped))
	slog.Info("Receipt ingested", "session_id", s.id, "source", source, "items", len(items), "dropped", len(dropped))

	return append([]split.Item(nil), items...), nil
}

// SetRoster fixes the people sharing the bill. The owner is added
// automatically; names are trimmed and must not be blank.
func (s *Session) SetRoster(names []string) ([]split.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.requirePhase("set roster", PhaseRoster); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: roster is empty", split.ErrInvalidRoster)
	}

	participants := make([]split.Participant, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: participant %d has no name", split.ErrInvalidRoster, i)
		}
		participants = append(participants, split.Participant{ID: s.idGenerator.Generate(), Name: name})
	}

	store := split.NewStore(s.config.OwnerName)
	if err := store.Initialize(s.items, participants); err != nil {
		return nil, err
	}

	s.store = store
	s.phase = PhaseAssign
	slog.Info("Roster set", "session_id", s.id, "participants", len(participants)+1)

	return store.Participants(), nil
}

// Assign consumes one unit of an item for the given participants. It returns
// the item's remaining quantity and whether every unit of the receipt is now
// assigned.
func (s *Session) Assign(itemID string, participantIDs []string, isSplit bool) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.requirePhase("assign", PhaseAssign); err != nil {
		s.config.Metrics.AssignmentRejected("invalid_phase")
		return 0, false, err
	}

	remaining, err := s.store.AssignUnit(itemID, participantIDs, isSplit)
	if err != nil {
		s.config.Metrics.AssignmentRejected(rejectionReason(err))
		return 0, false, err
	}

	s.config.Metrics.Assigned(isSplit && len(participantIDs) > 1)
	slog.Debug("Unit assigned", "session_id", s.id, "item_id", itemID, "participants", len(participantIDs), "remaining", remaining)
	return remaining, s.store.IsComplete(), nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, split.ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, split.ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, split.ErrNoRemainingQuantity):
		return "no_remaining_quantity"
	case errors.Is(err, split.ErrInvalidAssignment):
		return "invalid_assignment"
	default:
		return "other"
	}
}

// Summary returns the per-participant bills. From the assign phase it
// requires every unit to be assigned and moves the session to summary.
func (s *Session) Summary() (split.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.requirePhase("summary", PhaseAssign, PhaseSummary); err != nil {
		return split.Summary{}, err
	}
	if !s.store.IsComplete() {
		assigned, total := s.store.Progress()
		return split.Summary{}, fmt.Errorf("%w: %d of %d units assigned", ErrIncomplete, assigned, total)
	}

	summary := s.store.Summary()
	if s.phase == PhaseAssign {
		s.phase = PhaseSummary
		s.config.Metrics.SummaryProduced()
		slog.Info("Bill split", "session_id", s.id, "total", summary.TotalBill.StringFixed(2), "discrepancy", summary.Discrepancy().String())
	}
	return summary, nil
}

// ResetAssignments clears the ledger but keeps items and roster.
func (s *Session) ResetAssignments() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := s.requirePhase("reset assignments", PhaseAssign, PhaseSummary); err != nil {
		return err
	}
	s.store.Reset()
	s.phase = PhaseAssign
	return nil
}

// Reset discards everything and returns the session to the ingest phase.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.phase = PhaseIngest
	s.merchant = ""
	s.items = nil
	s.store = nil
	s.scanning = false
	s.generation++
}

// ItemView is an item with its assignment state.
type ItemView struct {
	split.Item
	State split.ItemState `json:"state"`
}

// ParticipantView is a participant with the number of units they appear in.
type ParticipantView struct {
	split.Participant
	AssignedUnits int `json:"assigned_units"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID            string            `json:"id"`
	Phase         Phase             `json:"phase"`
	Merchant      string            `json:"merchant,omitempty"`
	Scanning      bool              `json:"scanning"`
	Items         []ItemView        `json:"items"`
	Participants  []ParticipantView `json:"participants"`
	Ledger        split.Ledger      `json:"ledger,omitempty"`
	AssignedUnits int               `json:"assigned_units"`
	TotalUnits    int               `json:"total_units"`
	TotalBill     decimal.Decimal   `json:"total_bill"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		Phase:        s.phase,
		Merchant:     s.merchant,
		Scanning:     s.scanning,
		Items:        []ItemView{},
		Participants: []ParticipantView{},
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.lastActive,
	}

	items := s.items
	if s.store != nil {
		items = s.store.Items()
		counts := s.store.UnitCounts()
		for _, p := range s.store.Participants() {
			snap.Participants = append(snap.Participants, ParticipantView{Participant: p, AssignedUnits: counts[p.ID]})
		}
		snap.Ledger = s.store.Ledger()
	}

	for _, item := range items {
		snap.Items = append(snap.Items, ItemView{Item: item, State: item.State()})
		snap.TotalUnits += item.Quantity
		snap.AssignedUnits += item.Quantity - item.RemainingQuantity
	}
	snap.TotalBill = split.TotalBill(items)

	return snap
}
