package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drvMode struct {
	schemaErr bool
	queryErr  bool
	badJSON   bool
	nullScope bool
}

var (
	testDriverCounter atomic.Int64
	testMu            sync.Mutex
	testMode          drvMode
	testExecs         []string
)

type fakeDriver struct{}

type fakeConn struct{}

type fakeRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (d fakeDriver) Open(string) (driver.Conn, error) { return fakeConn{}, nil }
func (c fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c fakeConn) Close() error              { return nil }
func (c fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("not implemented") }

func (c fakeConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	testMu.Lock()
	defer testMu.Unlock()
	if testMode.schemaErr {
		return nil, errors.New("schema failed")
	}
	testExecs = append(testExecs, query)
	return driver.RowsAffected(1), nil
}

func (c fakeConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	testMu.Lock()
	defer testMu.Unlock()
	if testMode.queryErr {
		return nil, errors.New("query failed")
	}
	var row1Scope driver.Value = []byte(`{"pdf":true}`)
	if testMode.badJSON {
		row1Scope = []byte(`{bad`)
	}
	if testMode.nullScope {
		row1Scope = nil
	}
	return &fakeRows{
		cols: []string{"token", "rate_limit", "scope"},
		data: [][]driver.Value{{"tok1", int64(5), row1Scope}, {"tok2", int64(2), []byte(`{"word":true}`)}},
	}, nil
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}

func setMode(m drvMode) {
	testMu.Lock()
	testMode = m
	testExecs = nil
	testMu.Unlock()
}

func openTestRepo(t *testing.T) *TokenRepository {
	t.Helper()
	name := fmt.Sprintf("fakedrv_%d", testDriverCounter.Add(1))
	sql.Register(name, fakeDriver{})
	db, err := sql.Open(name, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &TokenRepository{DB: &DB{db: db, dsn: "x"}, DSN: "x"}
}

func TestTokenRepository_LoadTokens(t *testing.T) {
	setMode(drvMode{})
	r := openTestRepo(t)

	out, err := r.LoadTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 5, out["tok1"].RateLimit)
	assert.True(t, out["tok1"].Allows("pdf"))
	assert.False(t, out["tok1"].Allows("word"))
	assert.True(t, out["tok2"].Scope["word"])

	testMu.Lock()
	defer testMu.Unlock()
	require.Len(t, testExecs, len(migrations))
	assert.True(t, strings.HasPrefix(testExecs[0], "CREATE TABLE IF NOT EXISTS tokens"))
}

func TestTokenRepository_NullScopeAllowsEverything(t *testing.T) {
	setMode(drvMode{nullScope: true})
	r := openTestRepo(t)

	out, err := r.LoadTokens(context.Background())
	require.NoError(t, err)
	assert.True(t, out["tok1"].Allows("word"))
}

func TestTokenRepository_Errors(t *testing.T) {
	for name, mode := range map[string]drvMode{
		"schema": {schemaErr: true},
		"query":  {queryErr: true},
		"json":   {badJSON: true},
	} {
		t.Run(name, func(t *testing.T) {
			setMode(mode)
			r := openTestRepo(t)
			_, err := r.LoadTokens(context.Background())
			assert.Error(t, err)
		})
	}
}
