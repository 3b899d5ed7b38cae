package app

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	actx "go.hackfix.me/dbmig/app/context"
	"go.hackfix.me/dbmig/db"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

type testApp struct {
	*App
	fs                    vfs.FileSystem
	stdin, stdout, stderr *safeBuffer
	env                   *mockEnv
	// db is kept open for the lifetime of the test, since Run closes its own
	// connection, and the in-memory database is dropped with the last one.
	db  *db.DB
	dsn string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	// A unique name per app, to avoid clashing of in-memory SQLite DBs.
	rndName := make([]byte, 12)
	_, err := rand.Read(rndName)
	require.NoError(t, err)

	// Not using just :memory: to avoid 'no such table' issue.
	// See https://github.com/mattn/go-sqlite3#faq
	dsn := fmt.Sprintf("file:dbmig-%x?mode=memory&cache=shared", rndName)
	d, err := db.Open(t.Context(), "sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, d.PingContext(t.Context()))
	t.Cleanup(func() { _ = d.Close() })

	var (
		fs                    = memoryfs.New()
		stdin, stdout, stderr = newSafeBuffer(), newSafeBuffer(), newSafeBuffer()
		env                   = &mockEnv{env: map[string]string{}}
	)

	opts := []Option{
		WithTimeNow(timeNowFn),
		WithEnv(env),
		WithContext(t.Context()),
		WithFDs(stdin, stdout, stderr),
		WithFS(fs),
		WithLogger(false),
	}
	app, err := New("dbmig", "/config.json", opts...)
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll("/migrations", 0o755))

	return &testApp{
		App: app, fs: fs, db: d, dsn: dsn,
		stdin: stdin, stdout: stdout, stderr: stderr, env: env,
	}
}

// Run executes the app with args, after resetting the outputs of any previous
// run.
func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	ta.stderr.Reset()

	return ta.App.Run(args)
}

// writeConfig stores a configuration file pointing to the test database and
// migrations directory. extra is merged into the "migrations" object.
func (ta *testApp) writeConfig(t *testing.T, extra map[string]any) {
	t.Helper()

	migCfg := map[string]any{"path": "/migrations"}
	for k, v := range extra {
		migCfg[k] = v
	}
	cfgJSON, err := json.Marshal(map[string]any{
		"database":   map[string]any{"driver": "sqlite", "dsn": ta.dsn},
		"migrations": migCfg,
	})
	require.NoError(t, err)
	require.NoError(t, vfs.WriteFile(ta.fs, "/config.json", cfgJSON, 0o644))
}

// writeUnit stores a SQL migration unit in the migrations directory.
func (ta *testApp) writeUnit(t *testing.T, version, up, down string) {
	t.Helper()

	content := fmt.Sprintf("-- +migrate Up\n%s\n\n-- +migrate Down\n%s\n", up, down)
	err := vfs.WriteFile(ta.fs, filepath.Join("/migrations", version+".sql"), []byte(content), 0o644)
	require.NoError(t, err)
}

// tableExists reports whether the named table exists in the test database.
func (ta *testApp) tableExists(t *testing.T, name string) bool {
	t.Helper()

	var n int
	err := ta.db.QueryRowContext(t.Context(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)

	return n > 0
}

type mockEnv struct {
	mx  sync.RWMutex
	env map[string]string
}

var _ actx.Environment = (*mockEnv)(nil)

func (me *mockEnv) Get(key string) string {
	me.mx.RLock()
	defer me.mx.RUnlock()
	return me.env[key]
}

func (me *mockEnv) Set(key, val string) error {
	me.mx.Lock()
	defer me.mx.Unlock()
	me.env[key] = val
	return nil
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

var (
	_ io.Reader = (*safeBuffer)(nil)
	_ io.Writer = (*safeBuffer)(nil)
)

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Read(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Read(p)
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}
