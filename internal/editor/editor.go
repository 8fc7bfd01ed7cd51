package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/qmuntal/stateless"

	"ratecard-service/internal/ratecard"
)

var (
	ErrUnknownCell = errors.New("unknown cell")
	ErrCellBusy    = errors.New("cell is still saving")
	ErrNotEditing  = errors.New("cell is not being edited")
	ErrNotLoaded   = errors.New("table not loaded")
	ErrStopped     = errors.New("editor stopped")
	ErrRunning     = errors.New("editor already running")
)

// CommitKey is how an edit was finished.
type CommitKey int

const (
	Enter CommitKey = iota
	Tab
	Blur
)

// RefreshMode selects how a server snapshot is reconciled with local state.
type RefreshMode int

const (
	// RefreshMerge keeps non-empty local values over the server's.
	RefreshMerge RefreshMode = iota
	// RefreshReplace takes the server's values.
	RefreshReplace
)

// pending is an optimistic value the server has not yet been seen to hold.
type pending struct {
	value    string
	previous string
	saveID   uint64
	acked    bool
	ackedAt  uint64
}

// Editor owns one table's local grid. Operator actions run synchronously;
// server responses are applied in order by Run.
type Editor struct {
	srv     Server
	tableID string
	notify  Notifier
	log     *slog.Logger

	events  chan any
	done    chan struct{}
	started atomic.Bool

	mu       sync.Mutex
	table    *ratecard.Table
	cells    map[ratecard.CellKey]*stateless.StateMachine
	drafts   map[ratecard.CellKey]string
	pending  map[ratecard.CellKey]*pending
	active   *ratecard.CellKey
	clock    uint64
	saves    uint64
	inflight int
	waiters  []chan struct{}
}

func New(srv Server, tableID string, notify Notifier, log *slog.Logger) *Editor {
	if notify == nil {
		notify = NotifierFunc(func(Toast) {})
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Editor{
		srv:     srv,
		tableID: tableID,
		notify:  notify,
		log:     log.With(slog.String("table", tableID)),
		events:  make(chan any, 64),
		done:    make(chan struct{}),
		cells:   make(map[ratecard.CellKey]*stateless.StateMachine),
		drafts:  make(map[ratecard.CellKey]string),
		pending: make(map[ratecard.CellKey]*pending),
	}
}

type saveAcked struct {
	key    ratecard.CellKey
	saveID uint64
}

type saveFailed struct {
	key    ratecard.CellKey
	saveID uint64
	err    error
}

type refreshed struct {
	mode   RefreshMode
	issued uint64
	table  *ratecard.Table
	err    error
}

// Run applies server responses until ctx is done. It must be running for
// saves and refreshes to take effect, and runs at most once per Editor.
func (e *Editor) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.apply(ctx, ev)
		}
	}
}

func (e *Editor) post(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// apply handles one event. Toasts go out with the lock released so a
// notifier may read the editor; the event only counts as done afterwards.
func (e *Editor) apply(ctx context.Context, ev any) {
	e.mu.Lock()
	toasts := e.applyLocked(ctx, ev)
	e.mu.Unlock()

	for _, t := range toasts {
		e.notify.Notify(t)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if e.inflight == 0 {
		for _, w := range e.waiters {
			close(w)
		}
		e.waiters = nil
	}
}

func (e *Editor) applyLocked(ctx context.Context, ev any) []Toast {
	switch ev := ev.(type) {
	case saveAcked:
		e.fire(ev.key, triggerAck)
		if p, ok := e.pending[ev.key]; ok && p.saveID == ev.saveID {
			p.acked = true
			p.ackedAt = e.tick()
			if !e.exists(ev.key) {
				delete(e.pending, ev.key)
			}
		}
	case saveFailed:
		e.fire(ev.key, triggerFail)
		if p, ok := e.pending[ev.key]; ok && p.saveID == ev.saveID {
			delete(e.pending, ev.key)
			e.setLocal(ev.key, p.previous)
		}
		e.log.Warn("cell save failed", slog.String("cell", ev.key.String()), slog.String("err", ev.err.Error()))
		e.refreshLocked(ctx, RefreshReplace)
		return []Toast{{Level: LevelError, Message: "failed to save cell: " + ev.err.Error()}}
	case refreshed:
		if ev.err != nil {
			e.log.Warn("refresh failed", slog.String("err", ev.err.Error()))
			return []Toast{{Level: LevelError, Message: "failed to load table: " + ev.err.Error()}}
		}
		// A snapshot fetched after an acknowledgement already holds that value.
		for k, p := range e.pending {
			if p.acked && p.ackedAt < ev.issued {
				delete(e.pending, k)
			}
		}
		e.reconcile(ev.table, ev.mode)
	}
	return nil
}

func (e *Editor) tick() uint64 {
	e.clock++
	return e.clock
}

// start runs fn off the caller's goroutine and posts its result event.
func (e *Editor) start(fn func() any) {
	e.inflight++
	go func() { e.post(fn()) }()
}

// Settle blocks until every issued save and refresh has been applied.
func (e *Editor) Settle(ctx context.Context) error {
	e.mu.Lock()
	if e.inflight == 0 {
		e.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	e.waiters = append(e.waiters, w)
	e.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load fetches the table and replaces local values, keeping pending edits.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	issued := e.tick()
	e.mu.Unlock()

	t, err := e.srv.GetTable(ctx, e.tableID)
	if err != nil {
		return fmt.Errorf("load table %s: %w", e.tableID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, p := range e.pending {
		if p.acked && p.ackedAt < issued {
			delete(e.pending, k)
		}
	}
	e.reconcile(t, RefreshReplace)
	return nil
}

// Refresh asks the server for a new snapshot; Run applies it.
func (e *Editor) Refresh(ctx context.Context, mode RefreshMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshLocked(ctx, mode)
}

func (e *Editor) refreshLocked(ctx context.Context, mode RefreshMode) {
	issued := e.tick()
	e.start(func() any {
		t, err := e.srv.GetTable(context.WithoutCancel(ctx), e.tableID)
		return refreshed{mode: mode, issued: issued, table: t, err: err}
	})
}

// reconcile installs a server snapshot. Per cell the pending value always
// wins; in merge mode a non-empty local value beats the server's.
func (e *Editor) reconcile(server *ratecard.Table, mode RefreshMode) {
	next := *server
	next.Columns = slices.Clone(server.Columns)
	next.Rows = make([]ratecard.Row, 0, len(server.Rows))

	for _, sr := range server.Rows {
		row := sr
		row.Cells = make([]ratecard.Cell, 0, len(next.Columns))
		var local *ratecard.Row
		if e.table != nil {
			if lr, ok := e.table.Row(sr.ID); ok {
				local = &lr
			}
		}
		for _, col := range next.Columns {
			key := ratecard.CellKey{RowID: sr.ID, ColumnID: col.ID}
			value := sr.Value(col.ID)
			switch p, ok := e.pending[key]; {
			case ok:
				value = p.value
			case mode == RefreshMerge && local != nil:
				if lv := local.Value(col.ID); lv != "" || value == "" {
					value = lv
				}
			}
			row.Cells = append(row.Cells, ratecard.Cell{ColumnID: col.ID, Value: value})
		}
		next.Rows = append(next.Rows, row)
	}
	e.table = &next

	for k := range e.cells {
		if !e.exists(k) && stateOf(e.cells[k]) != Saving {
			delete(e.cells, k)
			delete(e.drafts, k)
			delete(e.pending, k)
		}
	}
	if e.active != nil && !e.exists(*e.active) {
		e.active = nil
	}
}

func (e *Editor) exists(k ratecard.CellKey) bool {
	if e.table == nil {
		return false
	}
	_, rowOK := e.table.Row(k.RowID)
	_, colOK := e.table.Column(k.ColumnID)
	return rowOK && colOK
}

func (e *Editor) machine(k ratecard.CellKey) *stateless.StateMachine {
	m, ok := e.cells[k]
	if !ok {
		m = newCellMachine()
		e.cells[k] = m
	}
	return m
}

func (e *Editor) fire(k ratecard.CellKey, trigger string) {
	if err := e.machine(k).Fire(trigger); err != nil {
		e.log.Debug("ignored transition", slog.String("cell", k.String()), slog.String("trigger", trigger))
	}
}

func (e *Editor) localValue(k ratecard.CellKey) string {
	if e.table == nil {
		return ""
	}
	row, _ := e.table.Row(k.RowID)
	return row.Value(k.ColumnID)
}

func (e *Editor) setLocal(k ratecard.CellKey, value string) {
	if e.table == nil {
		return
	}
	for i := range e.table.Rows {
		if e.table.Rows[i].ID == k.RowID {
			e.table.Rows[i].SetValue(k.ColumnID, value)
			return
		}
	}
}

// Table returns a copy of the local grid with pending values applied.
func (e *Editor) Table() (ratecard.Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table == nil {
		return ratecard.Table{}, false
	}
	out := *e.table
	out.Columns = slices.Clone(e.table.Columns)
	out.Rows = make([]ratecard.Row, len(e.table.Rows))
	for i, r := range e.table.Rows {
		r.Cells = slices.Clone(r.Cells)
		for j := range r.Cells {
			if p, ok := e.pending[ratecard.CellKey{RowID: r.ID, ColumnID: r.Cells[j].ColumnID}]; ok {
				r.Cells[j].Value = p.value
			}
		}
		out.Rows[i] = r
	}
	return out, true
}

// CellValue is what the grid shows for a cell: the pending value while one
// exists, else the local value.
func (e *Editor) CellValue(rowID, columnID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ratecard.CellKey{RowID: rowID, ColumnID: columnID}
	if p, ok := e.pending[k]; ok {
		return p.value
	}
	return e.localValue(k)
}

// Pending reports whether the cell still has an unconfirmed value.
func (e *Editor) Pending(rowID, columnID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[ratecard.CellKey{RowID: rowID, ColumnID: columnID}]
	return ok
}

func (e *Editor) CellState(rowID, columnID string) CellState {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.cells[ratecard.CellKey{RowID: rowID, ColumnID: columnID}]
	if !ok {
		return Idle
	}
	return stateOf(m)
}

// Display renders the cell with its column's widget.
func (e *Editor) Display(rowID, columnID string) (ratecard.Display, error) {
	e.mu.Lock()
	if e.table == nil {
		e.mu.Unlock()
		return ratecard.Display{}, ErrNotLoaded
	}
	k := ratecard.CellKey{RowID: rowID, ColumnID: columnID}
	col, _ := e.table.Column(columnID)
	ok := e.exists(k)
	e.mu.Unlock()
	if !ok {
		return ratecard.Display{}, fmt.Errorf("%w: %s", ErrUnknownCell, k)
	}
	return ratecard.Render(col, e.CellValue(rowID, columnID))
}

// Active is the cell currently being edited, if any.
func (e *Editor) Active() (ratecard.CellKey, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return ratecard.CellKey{}, false
	}
	return *e.active, true
}

// BeginEdit opens the cell for editing with its current value as the draft.
func (e *Editor) BeginEdit(rowID, columnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beginLocked(ratecard.CellKey{RowID: rowID, ColumnID: columnID})
}

func (e *Editor) beginLocked(k ratecard.CellKey) error {
	if e.table == nil {
		return ErrNotLoaded
	}
	if !e.exists(k) {
		return fmt.Errorf("%w: %s", ErrUnknownCell, k)
	}
	m := e.machine(k)
	switch stateOf(m) {
	case Editing:
		return nil
	case Saving:
		return ErrCellBusy
	}
	if err := m.Fire(triggerBegin); err != nil {
		return err
	}
	if p, ok := e.pending[k]; ok {
		e.drafts[k] = p.value
	} else {
		e.drafts[k] = e.localValue(k)
	}
	e.active = &k
	return nil
}

func (e *Editor) SetDraft(rowID, columnID, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ratecard.CellKey{RowID: rowID, ColumnID: columnID}
	if m, ok := e.cells[k]; !ok || stateOf(m) != Editing {
		return ErrNotEditing
	}
	e.drafts[k] = value
	return nil
}

// Cancel abandons the draft.
func (e *Editor) Cancel(rowID, columnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := ratecard.CellKey{RowID: rowID, ColumnID: columnID}
	m, ok := e.cells[k]
	if !ok || stateOf(m) != Editing {
		return ErrNotEditing
	}
	if err := m.Fire(triggerCancel); err != nil {
		return err
	}
	delete(e.drafts, k)
	if e.active != nil && *e.active == k {
		e.active = nil
	}
	return nil
}

// Commit applies the draft locally, marks it pending and saves it in the
// background. Tab then opens the next column of the same row.
func (e *Editor) Commit(ctx context.Context, rowID, columnID string, key CommitKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := ratecard.CellKey{RowID: rowID, ColumnID: columnID}
	m, ok := e.cells[k]
	if !ok || stateOf(m) != Editing {
		return ErrNotEditing
	}
	if err := m.Fire(triggerCommit); err != nil {
		return err
	}
	value := e.drafts[k]
	delete(e.drafts, k)
	if e.active != nil && *e.active == k {
		e.active = nil
	}

	current := e.localValue(k)
	if p, ok := e.pending[k]; ok {
		current = p.value
	}
	if value == current {
		e.fire(k, triggerAck)
	} else {
		e.saves++
		saveID := e.saves
		e.pending[k] = &pending{value: value, previous: e.localValue(k), saveID: saveID}
		e.setLocal(k, value)

		cells := []ratecard.Cell{{ColumnID: columnID, Value: value}}
		e.start(func() any {
			if _, err := e.srv.UpdateCells(context.WithoutCancel(ctx), e.tableID, rowID, cells); err != nil {
				return saveFailed{key: k, saveID: saveID, err: err}
			}
			return saveAcked{key: k, saveID: saveID}
		})
	}

	if key == Tab {
		if next, ok := e.nextColumn(columnID); ok {
			nk := ratecard.CellKey{RowID: rowID, ColumnID: next}
			// The commit stands even when the next cell cannot open yet.
			if err := e.beginLocked(nk); err != nil {
				e.log.Debug("tab did not advance", slog.String("cell", nk.String()), slog.String("err", err.Error()))
			}
		}
	}
	return nil
}

func (e *Editor) nextColumn(columnID string) (string, bool) {
	cols := e.table.Columns
	for i, c := range cols {
		if c.ID == columnID && i+1 < len(cols) {
			return cols[i+1].ID, true
		}
	}
	return "", false
}

func (e *Editor) toastErr(prefix string, err error) error {
	e.notify.Notify(Toast{Level: LevelError, Message: prefix + ": " + err.Error()})
	return err
}

// AddRow creates an empty bookable row and merges the refreshed table.
func (e *Editor) AddRow(ctx context.Context) (*ratecard.Row, error) {
	row, err := e.srv.CreateRow(ctx, e.tableID, ratecard.Row{IsBookable: true})
	if err != nil {
		return nil, e.toastErr("failed to add row", err)
	}
	e.Refresh(ctx, RefreshMerge)
	return row, nil
}

// AddColumn creates a column and merges the refreshed table.
func (e *Editor) AddColumn(ctx context.Context, name string, dt ratecard.DataType, cfg *ratecard.ColumnConfig) (*ratecard.Column, error) {
	if name == "" {
		err := errors.New("column name is required")
		e.notify.Notify(Toast{Level: LevelError, Message: err.Error()})
		return nil, err
	}
	if dt == ratecard.TypeDropdown && (cfg == nil || len(cfg.Options) == 0) {
		err := errors.New("dropdown columns need at least one option")
		e.notify.Notify(Toast{Level: LevelError, Message: err.Error()})
		return nil, err
	}
	col, err := e.srv.CreateColumn(ctx, e.tableID, ratecard.Column{Name: name, DataType: dt, Config: cfg})
	if err != nil {
		return nil, e.toastErr("failed to add column", err)
	}
	e.Refresh(ctx, RefreshMerge)
	return col, nil
}

func (e *Editor) DeleteRow(ctx context.Context, rowID string) error {
	if err := e.srv.DeleteRow(ctx, e.tableID, rowID); err != nil {
		return e.deleteFailed("row", err)
	}
	e.Refresh(ctx, RefreshMerge)
	return nil
}

func (e *Editor) DeleteColumn(ctx context.Context, columnID string) error {
	if err := e.srv.DeleteColumn(ctx, e.tableID, columnID); err != nil {
		return e.deleteFailed("column", err)
	}
	e.Refresh(ctx, RefreshMerge)
	return nil
}

func (e *Editor) deleteFailed(what string, err error) error {
	if n, ok := ConflictCount(err); ok {
		e.notify.Notify(Toast{Level: LevelError, Message: fmt.Sprintf("cannot delete %s, %d bookings", what, n)})
		return err
	}
	return e.toastErr("failed to delete "+what, err)
}
