// Package session persists the state of a sync run so that it can resume
// after the page (or the whole process) was reloaded.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mfsync/internal/components/telemetry"
	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward"

	"github.com/google/uuid"
)

const (
	KeyEndpoint      = "GAS_URL"
	KeyPendingMode   = "PENDING_SYNC_MODE"
	KeyQueue         = "MF_SYNC_QUEUE"
	KeyData          = "MF_SYNC_DATA"
	KeyLastSync      = "LAST_SYNC_TIME"
	KeyRunID         = "MF_SYNC_RUN_ID"
	KeyStopRequested = "STOP_REQUESTED"
)

const (
	report_store_load  = "store.load"
	report_store_save  = "store.save"
	report_store_clear = "store.clear"
)

type Mode string

const (
	ModeManual    Mode = "manual"
	ModeForceFull Mode = "force_full"
	ModeAuto      Mode = "auto"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeManual, ModeForceFull, ModeAuto:
		return true
	}
	return false
}

// Interactive reports whether a user is waiting on a run of this mode.
func (m Mode) Interactive() bool {
	return m != ModeAuto
}

// Session is a sync run in progress.
type Session struct {
	RunID uuid.UUID
	Mode  Mode
	// Planned is false while the run is still redirecting to its start, the
	// queue has not been computed yet.
	Planned bool
	// Queue holds the periods left to scrape, newest first.
	Queue     []period.Period
	Collected []moneyforward.Record
}

// New returns an unplanned session for mode.
func New(mode Mode) Session {
	return Session{RunID: uuid.New(), Mode: mode}
}

// Store reads and writes sessions and the other persisted values on a KV.
// It is only written by one sync run at a time.
type Store struct {
	kv  KV
	tel telemetry.API
}

func NewStore(kv KV, tel telemetry.API) Store {
	return Store{kv: kv, tel: telemetry.NewScopedAPI("session", tel)}
}

// Load returns the pending session, ok is false when there is none. A
// session with an unknown mode is discarded.
func (s Store) Load(ctx context.Context) (Session, bool, error) {
	out, ok, err := s.Peek(ctx)
	if err != nil || !ok {
		return out, ok, err
	}
	if !out.Mode.Valid() {
		s.tel.ReportWarning(report_store_load, "unknown pending mode, discarding session", string(out.Mode))
		return Session{}, false, s.Clear(ctx)
	}
	return out, true, nil
}

// Peek reads the pending session without ever writing to the store, its
// Mode may be invalid.
func (s Store) Peek(ctx context.Context) (Session, bool, error) {
	mode, ok, err := s.kv.Get(ctx, KeyPendingMode)
	if err != nil {
		s.tel.ReportBroken(report_store_load, fmt.Errorf("get mode: %w", err))
		return Session{}, false, err
	}
	if !ok {
		return Session{}, false, nil
	}

	out := Session{Mode: Mode(mode)}

	runId, ok, err := s.kv.Get(ctx, KeyRunID)
	if err != nil {
		s.tel.ReportBroken(report_store_load, fmt.Errorf("get run id: %w", err))
		return Session{}, false, err
	}
	if ok {
		out.RunID, err = uuid.Parse(runId)
		if err != nil {
			s.tel.ReportWarning(report_store_load, "invalid run id", runId)
		}
	}
	if out.RunID == uuid.Nil {
		out.RunID = uuid.New()
	}

	queue, ok, err := s.kv.Get(ctx, KeyQueue)
	if err != nil {
		s.tel.ReportBroken(report_store_load, fmt.Errorf("get queue: %w", err))
		return Session{}, false, err
	}
	if ok {
		out.Planned = true
		err = json.Unmarshal([]byte(queue), &out.Queue)
		if err != nil {
			s.tel.ReportBroken(report_store_load, fmt.Errorf("json unmarshal queue: %w", err))
			return Session{}, false, err
		}
	}

	data, ok, err := s.kv.Get(ctx, KeyData)
	if err != nil {
		s.tel.ReportBroken(report_store_load, fmt.Errorf("get data: %w", err))
		return Session{}, false, err
	}
	if ok {
		err = json.Unmarshal([]byte(data), &out.Collected)
		if err != nil {
			s.tel.ReportBroken(report_store_load, fmt.Errorf("json unmarshal data: %w", err))
			return Session{}, false, err
		}
	}

	return out, true, nil
}

// Save writes the whole session at once.
func (s Store) Save(ctx context.Context, session Session) error {
	values := map[string]string{
		KeyPendingMode: string(session.Mode),
		KeyRunID:       session.RunID.String(),
	}

	if session.Planned {
		queue := session.Queue
		if queue == nil {
			queue = []period.Period{}
		}
		serialized, err := json.Marshal(queue)
		if err != nil {
			s.tel.ReportBroken(report_store_save, fmt.Errorf("json marshal queue: %w", err))
			return err
		}
		values[KeyQueue] = string(serialized)
	}

	collected := session.Collected
	if collected == nil {
		collected = []moneyforward.Record{}
	}
	serialized, err := json.Marshal(collected)
	if err != nil {
		s.tel.ReportBroken(report_store_save, fmt.Errorf("json marshal data: %w", err))
		return err
	}
	values[KeyData] = string(serialized)

	err = s.kv.Set(ctx, values)
	if err != nil {
		s.tel.ReportBroken(report_store_save, fmt.Errorf("set: %w", err))
		return err
	}
	if !session.Planned {
		return s.kv.Delete(ctx, KeyQueue)
	}
	return nil
}

// Clear removes the pending session along with any stop request.
func (s Store) Clear(ctx context.Context) error {
	err := s.kv.Delete(ctx, KeyPendingMode, KeyRunID, KeyQueue, KeyData, KeyStopRequested)
	if err != nil {
		s.tel.ReportBroken(report_store_clear, err)
		return err
	}
	return nil
}

// LastSync returns when a sync last completed, ok is false if never.
func (s Store) LastSync(ctx context.Context) (time.Time, bool, error) {
	value, ok, err := s.kv.Get(ctx, KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		s.tel.ReportWarning(report_store_load, "invalid last sync time", value)
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.kv.Set(ctx, map[string]string{KeyLastSync: t.Format(time.RFC3339)})
}

// Endpoint returns the stored endpoint address, or "" if unset.
func (s Store) Endpoint(ctx context.Context) (string, error) {
	value, _, err := s.kv.Get(ctx, KeyEndpoint)
	return value, err
}

func (s Store) SetEndpoint(ctx context.Context, address string) error {
	return s.kv.Set(ctx, map[string]string{KeyEndpoint: address})
}

// RequestStop asks the running sync, possibly in another process, to stop
// at its next checkpoint.
func (s Store) RequestStop(ctx context.Context) error {
	return s.kv.Set(ctx, map[string]string{KeyStopRequested: "1"})
}

func (s Store) StopRequested(ctx context.Context) (bool, error) {
	_, ok, err := s.kv.Get(ctx, KeyStopRequested)
	return ok, err
}

func (s Store) ClearStop(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyStopRequested)
}
