package migrator

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.hackfix.me/dbmig/db"
	"go.hackfix.me/dbmig/db/types"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()

	// A unique name per test, to avoid clashing of in-memory SQLite DBs.
	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	require.NoError(t, err)

	d, err := db.Open(context.Background(), "sqlite",
		fmt.Sprintf("file:dbmig-%x?mode=memory&cache=shared", rndName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func newTestHistory(t *testing.T, d *db.DB) *History {
	t.Helper()

	h, err := NewHistory(d, d.Dialect(), "", timeNowFn, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	return h
}

func newTestMigrator(t *testing.T, cat Catalog, opts ...Option) (*Migrator, *db.DB, *bytes.Buffer) {
	t.Helper()

	d := newTestDB(t)
	out := &bytes.Buffer{}
	opts = append([]Option{
		WithOutput(out),
		WithTimeNow(timeNowFn),
		WithLocation(time.UTC),
		WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	m, err := New(d, d.Dialect(), cat, opts...)
	require.NoError(t, err)

	return m, d, out
}

func appliedVersions(t *testing.T, m *Migrator) []string {
	t.Helper()

	records, err := m.history.Recent(t.Context(), -1)
	require.NoError(t, err)

	versions := make([]string, 0, len(records))
	for _, rec := range records {
		versions = append(versions, rec.Version)
	}
	slices.Sort(versions)

	return versions
}

// callLog is a registry of units that only record their calls, and fail on
// demand.
type callLog struct {
	mx       sync.Mutex
	calls    []string
	failUp   map[string]bool
	failDown map[string]bool
}

func newCallLog() *callLog {
	return &callLog{failUp: map[string]bool{}, failDown: map[string]bool{}}
}

func (cl *callLog) record(call string) {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	cl.calls = append(cl.calls, call)
}

func (cl *callLog) Calls() []string {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	return slices.Clone(cl.calls)
}

func (cl *callLog) Reset() {
	cl.mx.Lock()
	defer cl.mx.Unlock()
	cl.calls = nil
}

func (cl *callLog) registry(t *testing.T, versions ...string) *Registry {
	t.Helper()

	reg := NewRegistry()
	for _, v := range versions {
		require.NoError(t, reg.Register(v, Funcs{
			UpFn: func(context.Context, types.Querier) error {
				cl.record("up " + v)
				if cl.failUp[v] {
					return fmt.Errorf("%w: %s refused to apply", ErrUnitFailed, v)
				}
				return nil
			},
			DownFn: func(context.Context, types.Querier) error {
				cl.record("down " + v)
				if cl.failDown[v] {
					return fmt.Errorf("%s can't be reverted", v)
				}
				return nil
			},
		}))
	}

	return reg
}
