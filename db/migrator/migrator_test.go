package migrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/dbmig/db/types"
)

const (
	vFirst  = "m250101_000001_first"
	vSecond = "m250101_000002_second"
	vThird  = "m250101_000003_third"
)

func declineAll(string) (bool, error) { return false, nil }

func TestMigratorUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		step       int
		failUp     string
		confirmer  Confirmer
		expCalls   []string
		expApplied []string
		expOut     []string
		expErr     error
	}{
		{
			name:       "ok/all",
			expCalls:   []string{"up " + vFirst, "up " + vSecond, "up " + vThird},
			expApplied: []string{BaseVersion, vFirst, vSecond, vThird},
			expOut: []string{
				"Total 3 new migrations to be applied:\n    " + vFirst + "\n",
				"*** applying " + vFirst + "\n",
				"*** applied " + vThird + " (time: ",
				"\nMigrated up successfully.\n",
			},
		},
		{
			name:       "ok/step",
			step:       2,
			expCalls:   []string{"up " + vFirst, "up " + vSecond},
			expApplied: []string{BaseVersion, vFirst, vSecond},
			expOut: []string{
				"Total 2 out of 3 new migrations to be applied:\n",
				"Migrated up successfully.",
			},
		},
		{
			name:       "ok/declined",
			confirmer:  ConfirmFunc(declineAll),
			expApplied: []string{BaseVersion},
			expOut:     []string{"Total 3 new migrations to be applied:\n"},
		},
		{
			name:       "err/unit_failed",
			failUp:     vSecond,
			expCalls:   []string{"up " + vFirst, "up " + vSecond},
			expApplied: []string{BaseVersion, vFirst},
			expOut: []string{
				"*** applied " + vFirst,
				"*** failed to apply " + vSecond + " (time: ",
				"\nMigration failed. All later migrations are canceled.\n",
			},
			expErr: ErrUnitFailed,
		},
		{
			name:   "err/invalid_step",
			step:   -1,
			expErr: ErrInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := newCallLog()
			if tt.failUp != "" {
				cl.failUp[tt.failUp] = true
			}
			opts := []Option{}
			if tt.confirmer != nil {
				opts = append(opts, WithConfirmer(tt.confirmer))
			}
			m, _, out := newTestMigrator(t, cl.registry(t, vThird, vFirst, vSecond), opts...)

			err := m.Up(t.Context(), tt.step)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expCalls, cl.Calls())
			if tt.expApplied != nil {
				assert.Equal(t, tt.expApplied, appliedVersions(t, m))
			}
			for _, exp := range tt.expOut {
				assert.Contains(t, out.String(), exp)
			}
			if tt.expErr != nil || tt.confirmer != nil {
				assert.NotContains(t, out.String(), "successfully")
			}
		})
	}
}

func TestMigratorUpToDate(t *testing.T) {
	t.Parallel()

	cl := newCallLog()
	m, _, out := newTestMigrator(t, cl.registry(t, vFirst))

	require.NoError(t, m.Up(t.Context(), 0))
	out.Reset()
	cl.Reset()

	require.NoError(t, m.Up(t.Context(), 0))
	assert.Equal(t, "No new migration found. Your system is up-to-date.\n", out.String())
	assert.Empty(t, cl.Calls())
}

func TestMigratorDown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		step       int
		failDown   string
		expCalls   []string
		expApplied []string
		expOut     []string
		expErr     error
	}{
		{
			name:       "ok/one",
			step:       1,
			expCalls:   []string{"down " + vThird},
			expApplied: []string{BaseVersion, vFirst, vSecond},
			expOut: []string{
				"Total 1 migration to be reverted:\n    " + vThird + "\n",
				"*** reverted " + vThird,
				"\nMigrated down successfully.\n",
			},
		},
		{
			name:       "ok/more_than_applied",
			step:       10,
			expCalls:   []string{"down " + vThird, "down " + vSecond, "down " + vFirst},
			expApplied: []string{BaseVersion},
			expOut:     []string{"Total 3 migrations to be reverted:\n"},
		},
		{
			name:       "err/unit_failed",
			step:       3,
			failDown:   vSecond,
			expCalls:   []string{"down " + vThird, "down " + vSecond},
			expApplied: []string{BaseVersion, vFirst, vSecond},
			expOut: []string{
				"*** failed to revert " + vSecond,
				"Migration failed. All later migrations are canceled.",
			},
			expErr: ErrUnitFailed,
		},
		{
			name:       "err/invalid_step",
			step:       0,
			expApplied: []string{BaseVersion, vFirst, vSecond, vThird},
			expErr:     ErrInvalidStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := newCallLog()
			if tt.failDown != "" {
				cl.failDown[tt.failDown] = true
			}
			m, _, out := newTestMigrator(t, cl.registry(t, vFirst, vSecond, vThird))
			require.NoError(t, m.Up(t.Context(), 0))
			out.Reset()
			cl.Reset()

			err := m.Down(t.Context(), tt.step)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expCalls, cl.Calls())
			assert.Equal(t, tt.expApplied, appliedVersions(t, m))
			for _, exp := range tt.expOut {
				assert.Contains(t, out.String(), exp)
			}
		})
	}
}

func TestMigratorDownNothingApplied(t *testing.T) {
	t.Parallel()

	cl := newCallLog()
	m, _, out := newTestMigrator(t, cl.registry(t, vFirst))

	require.NoError(t, m.Down(t.Context(), 1))
	assert.Equal(t, "No migration has been done before.\n", out.String())

	out.Reset()
	require.NoError(t, m.Redo(t.Context(), 1))
	assert.Equal(t, "No migration has been done before.\n", out.String())
	assert.Empty(t, cl.Calls())
}

func TestMigratorRedo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		step       int
		failDown   string
		reapply    bool
		expCalls   []string
		expApplied []string
		expOut     []string
		expErr     error
	}{
		{
			name: "ok/two",
			step: 2,
			expCalls: []string{
				"down " + vThird, "down " + vSecond, "up " + vSecond, "up " + vThird,
			},
			expApplied: []string{BaseVersion, vFirst, vSecond, vThird},
			expOut: []string{
				"Total 2 migrations to be redone:\n    " + vThird + "\n    " + vSecond + "\n",
				"\nMigration redone successfully.\n",
			},
		},
		{
			name:       "err/revert_failed",
			step:       2,
			failDown:   vSecond,
			expCalls:   []string{"down " + vThird, "down " + vSecond},
			expApplied: []string{BaseVersion, vFirst, vSecond},
			expOut:     []string{"Migration failed. All later migrations are canceled."},
			expErr:     ErrUnitFailed,
		},
		{
			name:       "err/revert_failed_reapply",
			step:       2,
			failDown:   vSecond,
			reapply:    true,
			expCalls:   []string{"down " + vThird, "down " + vSecond, "up " + vThird},
			expApplied: []string{BaseVersion, vFirst, vSecond, vThird},
			expOut:     []string{"Migration failed. All later migrations are canceled."},
			expErr:     ErrUnitFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cl := newCallLog()
			if tt.failDown != "" {
				cl.failDown[tt.failDown] = true
			}
			m, _, out := newTestMigrator(t, cl.registry(t, vFirst, vSecond, vThird),
				WithReapplyAfterFailedRevert(tt.reapply))
			require.NoError(t, m.Up(t.Context(), 0))
			out.Reset()
			cl.Reset()

			err := m.Redo(t.Context(), tt.step)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expCalls, cl.Calls())
			assert.Equal(t, tt.expApplied, appliedVersions(t, m))
			for _, exp := range tt.expOut {
				assert.Contains(t, out.String(), exp)
			}
		})
	}
}

func TestMigratorTo(t *testing.T) {
	t.Parallel()

	cl := newCallLog()
	m, _, out := newTestMigrator(t, cl.registry(t, vFirst, vSecond, vThird))
	ctx := t.Context()

	require.NoError(t, m.To(ctx, "250101_000002"))
	assert.Equal(t, []string{"up " + vFirst, "up " + vSecond}, cl.Calls())
	assert.Contains(t, out.String(), "Total 2 out of 3 new migrations to be applied:\n")

	// Migrating to the current version is a no-op.
	out.Reset()
	cl.Reset()
	require.NoError(t, m.To(ctx, vSecond))
	assert.Equal(t, "Already at '"+vSecond+"'. Nothing needs to be done.\n", out.String())
	assert.Empty(t, cl.Calls())

	out.Reset()
	require.NoError(t, m.To(ctx, "m250101_000001"))
	assert.Equal(t, []string{"down " + vSecond}, cl.Calls())
	assert.Equal(t, []string{BaseVersion, vFirst}, appliedVersions(t, m))

	out.Reset()
	cl.Reset()
	require.NoError(t, m.To(ctx, vThird))
	assert.Equal(t, []string{"up " + vSecond, "up " + vThird}, cl.Calls())

	// All units were applied at the fixed test time, after the base version,
	// so this resolves to the most recent one.
	out.Reset()
	cl.Reset()
	require.NoError(t, m.To(ctx, "2025-01-01 00:00:00"))
	assert.Contains(t, out.String(),
		"Found version "+vThird+" applied at 2025-01-01 00:00:00, it is before 2025-01-01 00:00:00.\n")
	assert.Contains(t, out.String(), "Nothing needs to be done.")
	assert.Empty(t, cl.Calls())

	err := m.To(ctx, "m250101_000009")
	assert.ErrorIs(t, err, ErrUnknownVersion)

	err = m.To(ctx, "not a version")
	assert.ErrorIs(t, err, ErrInvalidVersionTarget)
}

func TestMigratorMark(t *testing.T) {
	t.Parallel()

	cl := newCallLog()
	m, _, out := newTestMigrator(t, cl.registry(t, vFirst, vSecond, vThird))
	ctx := t.Context()

	require.NoError(t, m.Mark(ctx, vSecond))
	assert.Empty(t, cl.Calls())
	assert.Equal(t, []string{BaseVersion, vFirst, vSecond}, appliedVersions(t, m))
	assert.Contains(t, out.String(),
		"The migration history is set at "+vSecond+".\nNo actual migration was performed.\n")

	out.Reset()
	require.NoError(t, m.Mark(ctx, vSecond))
	assert.Equal(t, "Already at '"+vSecond+"'. Nothing needs to be done.\n", out.String())

	require.NoError(t, m.Mark(ctx, BaseVersion))
	assert.Empty(t, cl.Calls())
	assert.Equal(t, []string{BaseVersion}, appliedVersions(t, m))

	// A declined confirmation leaves the history untouched.
	require.NoError(t, WithConfirmer(ConfirmFunc(declineAll))(m))
	require.NoError(t, m.Mark(ctx, vThird))
	assert.Equal(t, []string{BaseVersion}, appliedVersions(t, m))

	err := m.Mark(ctx, "m250101_000009")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestMigratorReports(t *testing.T) {
	t.Parallel()

	cl := newCallLog()
	m, _, _ := newTestMigrator(t, cl.registry(t, vFirst, vSecond, vThird))
	ctx := t.Context()

	pending, total, err := m.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{vFirst, vSecond, vThird}, pending)

	pending, total, err = m.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{vFirst}, pending)

	require.NoError(t, m.Up(ctx, 2))

	records, err := m.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Version: vSecond, AppliedAt: timeNow}}, records)

	records, err = m.History(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Version: vSecond, AppliedAt: timeNow},
		{Version: vFirst, AppliedAt: timeNow},
		{Version: BaseVersion, AppliedAt: timeNow},
	}, records)

	records, err = m.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	pending, total, err = m.Pending(ctx, -5)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{vThird}, pending)
}

func TestMigratorCreate(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t, "/migrations", nil)
	cat, err := NewDirCatalog(fs, "/migrations")
	require.NoError(t, err)

	var prompts []string
	confirmer := ConfirmFunc(func(msg string) (bool, error) {
		prompts = append(prompts, msg)
		return true, nil
	})
	m, _, out := newTestMigrator(t, cat, WithConfirmer(confirmer),
		WithTemplate("-- {ClassName}\n-- +migrate Up\nCREATE TABLE {{ .Name }} (id INTEGER);\n"))
	ctx := t.Context()

	version, err := m.Create(ctx, "add_email")
	require.NoError(t, err)
	assert.Equal(t, "m250101_000000_add_email", version)
	assert.Equal(t, []string{"Create new migration '/migrations/m250101_000000_add_email.sql'?"}, prompts)
	assert.Equal(t, "New migration created successfully.\n", out.String())

	content, err := vfs.ReadFile(fs, "/migrations/m250101_000000_add_email.sql")
	require.NoError(t, err)
	assert.Equal(t,
		"-- m250101_000000_add_email\n-- +migrate Up\nCREATE TABLE add_email (id INTEGER);\n",
		string(content))

	pending, _, err := m.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{version}, pending)

	_, err = m.Create(ctx, "add-email")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = m.Create(ctx, "add_email")
	assert.EqualError(t, err, "migration file /migrations/m250101_000000_add_email.sql already exists")
}

func TestMigratorCreateDeclined(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t, "/migrations", nil)
	cat, err := NewDirCatalog(fs, "/migrations")
	require.NoError(t, err)
	m, _, out := newTestMigrator(t, cat, WithConfirmer(ConfirmFunc(declineAll)))

	version, err := m.Create(t.Context(), "add_email")
	require.NoError(t, err)
	assert.Empty(t, version)
	assert.Empty(t, out.String())

	versions, err := cat.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, versions)

	mReg, _, _ := newTestMigrator(t, NewRegistry())
	_, err = mReg.Create(t.Context(), "add_email")
	assert.ErrorIs(t, err, ErrCatalogReadOnly)
}

func TestMigratorSQLTransaction(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t, "/migrations", map[string]string{
		vFirst + ".sql": `
-- +migrate Up
CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);
-- +migrate Down
DROP TABLE users;
`,
		vSecond + ".sql": `
-- +migrate Up
CREATE TABLE posts (id INTEGER PRIMARY KEY);
INSERT INTO missing_table (id) VALUES (1);
-- +migrate Down
DROP TABLE posts;
`,
	})
	cat, err := NewDirCatalog(fs, "/migrations")
	require.NoError(t, err)
	m, d, out := newTestMigrator(t, cat)
	ctx := t.Context()

	err = m.Up(ctx, 0)
	require.ErrorIs(t, err, ErrUnitFailed)
	assert.Contains(t, out.String(), "*** failed to apply "+vSecond)
	assert.Equal(t, []string{BaseVersion, vFirst}, appliedVersions(t, m))

	exists, err := d.Dialect().TableExists(ctx, d, "users")
	require.NoError(t, err)
	assert.True(t, exists)

	// The partial changes of the failed unit were rolled back.
	exists, err = d.Dialect().TableExists(ctx, d, "posts")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Down(ctx, 1))
	exists, err = d.Dialect().TableExists(ctx, d, "users")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigratorUnitTimeout(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.MustRegister(vFirst, Funcs{
		UpFn: func(ctx context.Context, _ types.Querier) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	reg.MustRegister(vSecond, Funcs{})
	m, d, _ := newTestMigrator(t, reg, WithUnitTimeout(10*time.Millisecond))
	ctx := t.Context()

	err := m.Up(ctx, 0)
	require.ErrorIs(t, err, ErrUnitFailed)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The in-memory database survives the rollback of the timed out unit.
	exists, err := d.Dialect().TableExists(ctx, d, DefaultHistoryTable)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{BaseVersion}, appliedVersions(t, m))

	require.NoError(t, m.Mark(ctx, vFirst))
	require.NoError(t, m.Up(ctx, 0))
	assert.Equal(t, []string{BaseVersion, vFirst, vSecond}, appliedVersions(t, m))
}

func TestNewMigrator(t *testing.T) {
	t.Parallel()

	d := newTestDB(t)

	_, err := New(d, nil, NewRegistry())
	assert.EqualError(t, err, "database dialect is required")

	_, err = New(d, d.Dialect(), nil)
	assert.EqualError(t, err, "migration catalog is required")

	_, err = New(d, d.Dialect(), NewRegistry(), WithHistoryTable("bad-name"))
	assert.EqualError(t, err, "invalid migration table name 'bad-name'")

	_, err = New(d, d.Dialect(), NewRegistry(), WithUnitTimeout(-time.Second))
	assert.EqualError(t, err, "unit timeout must not be negative")

	_, err = New(d, d.Dialect(), NewRegistry(), WithConfirmer(nil))
	assert.EqualError(t, err, "confirmer is required")
}

func TestMigratorWithoutDatabase(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t, "/migrations", nil)
	cat, err := NewDirCatalog(fs, "/migrations")
	require.NoError(t, err)

	m, err := New(nil, nil, cat, WithTimeNow(timeNowFn))
	require.NoError(t, err)

	version, err := m.Create(t.Context(), "add_email")
	require.NoError(t, err)
	assert.Equal(t, "m250101_000000_add_email", version)

	assert.ErrorIs(t, m.Up(t.Context(), 0), ErrNoDatabase)
	assert.ErrorIs(t, m.To(t.Context(), version), ErrNoDatabase)
	_, err = m.History(t.Context(), 10)
	assert.ErrorIs(t, err, ErrNoDatabase)
}
