package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
)

// fakeDB implements DB with injectable behavior per call.
type fakeDB struct {
	QueryFunc    func(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) Row
	ExecFunc     func(ctx context.Context, sql string, args ...any) (CommandTag, error)
	BeginFunc    func(ctx context.Context) (Tx, error)
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if f.QueryFunc == nil {
		return nil, errors.New("unexpected Query call")
	}
	return f.QueryFunc(ctx, sql, args...)
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	if f.QueryRowFunc == nil {
		return errRow{errors.New("unexpected QueryRow call")}
	}
	return f.QueryRowFunc(ctx, sql, args...)
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	if f.ExecFunc == nil {
		return nil, errors.New("unexpected Exec call")
	}
	return f.ExecFunc(ctx, sql, args...)
}

func (f *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if f.BeginFunc != nil {
		return f.BeginFunc(ctx)
	}
	return &fakeTx{db: f}, nil
}

// fakeTx delegates to the parent fakeDB and records the outcome.
type fakeTx struct {
	db         *fakeDB
	Committed  bool
	RolledBack bool
	CommitErr  error
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

// fakeRows walks a fixed result set.
type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRows) Close() {}

func (r *fakeRows) Err() error { return r.err }

type valueRow struct {
	values []any
}

func rowFromValues(values ...any) Row {
	return valueRow{values: values}
}

func (r valueRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(dest ...any) error { return r.err }

// assign copies a fixture value into a scan destination, converting where the
// underlying types allow it (string into a named string type, value into a
// pointer destination).
func assign(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return errors.New("scan destination must be a non-nil pointer")
	}
	ev := dv.Elem()

	if value == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}

	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(ev.Type()):
		ev.Set(vv)
	case ev.Kind() == reflect.Ptr && vv.Type().AssignableTo(ev.Type().Elem()):
		p := reflect.New(ev.Type().Elem())
		p.Elem().Set(vv)
		ev.Set(p)
	case ev.Kind() == reflect.Ptr && vv.Type().ConvertibleTo(ev.Type().Elem()):
		p := reflect.New(ev.Type().Elem())
		p.Elem().Set(vv.Convert(ev.Type().Elem()))
		ev.Set(p)
	case vv.Type().ConvertibleTo(ev.Type()):
		ev.Set(vv.Convert(ev.Type()))
	default:
		return fmt.Errorf("cannot scan %T into %T", value, dest)
	}
	return nil
}

type fakeCommandTag struct {
	rows int64
}

func (t fakeCommandTag) RowsAffected() int64 { return t.rows }

// fakeFeed records published events.
type fakeFeed struct {
	mu     sync.Mutex
	events []ChangeEvent

	SubscribeFunc func(table string, fn func(ChangeEvent)) (func(), error)
}

func (f *fakeFeed) Publish(ctx context.Context, event ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeFeed) Subscribe(table string, fn func(ChangeEvent)) (func(), error) {
	if f.SubscribeFunc != nil {
		return f.SubscribeFunc(table, fn)
	}
	return func() {}, nil
}

func (f *fakeFeed) published() []ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChangeEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeNotifier records Notify calls.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []CreateNotificationParams
}

func (n *fakeNotifier) Notify(ctx context.Context, params CreateNotificationParams) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, params)
}

func (n *fakeNotifier) notified() []CreateNotificationParams {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]CreateNotificationParams, len(n.calls))
	copy(out, n.calls)
	return out
}

// fakeResolver resolves every id to itself unless overridden.
type fakeResolver struct {
	ResolveFunc func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

func (r *fakeResolver) ResolveUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if r.ResolveFunc != nil {
		return r.ResolveFunc(ctx, id)
	}
	return id, nil
}

// fakeAlertCreator counts Create calls and can fail selectively.
type fakeAlertCreator struct {
	mu        sync.Mutex
	calls     []CreateNotificationParams
	CreateErr func(params CreateNotificationParams) error
}

func (c *fakeAlertCreator) Create(ctx context.Context, params CreateNotificationParams) (*models.Notification, error) {
	if c.CreateErr != nil {
		if err := c.CreateErr(params); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, params)
	return &models.Notification{
		ID:       uuid.New(),
		UserID:   params.UserID,
		Type:     params.Type,
		Title:    params.Title,
		Message:  params.Message,
		Priority: params.Priority,
	}, nil
}

func (c *fakeAlertCreator) created() []CreateNotificationParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CreateNotificationParams, len(c.calls))
	copy(out, c.calls)
	return out
}

// fakeFriendLister serves a fixed friend list.
type fakeFriendLister struct {
	friends []models.Friend
	err     error
}

func (l *fakeFriendLister) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.friends, nil
}
