package coordination

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDB implements DBTX for testing over an in-memory table
type MockDB struct {
	rows    map[string]string
	ttls    map[string]int64
	execs   []string
	failErr error
}

func NewMockDB() *MockDB {
	return &MockDB{
		rows: make(map[string]string),
		ttls: make(map[string]int64),
	}
}

func (m *MockDB) QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row {
	if m.failErr != nil {
		return &MockRow{err: m.failErr}
	}

	switch {
	case query == "SELECT 1":
		return &MockRow{value: 1}
	case strings.HasPrefix(query, "SELECT value"):
		value, ok := m.rows[args[0].(string)]
		if !ok {
			return &MockRow{err: pgx.ErrNoRows}
		}
		return &MockRow{value: value}
	case strings.HasPrefix(query, "SELECT EXISTS"):
		_, ok := m.rows[args[0].(string)]
		return &MockRow{value: ok}
	}
	return &MockRow{err: errors.New("unexpected query: " + query)}
}

func (m *MockDB) Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}

	prefix := args[0].(string)
	var keys []string
	for key := range m.rows {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return &MockRows{values: keys}, nil
}

func (m *MockDB) Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error) {
	if m.failErr != nil {
		return pgconn.CommandTag{}, m.failErr
	}
	m.execs = append(m.execs, query)

	switch {
	case strings.HasPrefix(query, "INSERT"):
		key := args[0].(string)
		m.rows[key] = args[1].(string)
		delete(m.ttls, key)
		if len(args) > 2 {
			m.ttls[key] = args[2].(int64)
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.Contains(query, "expires_at <= now()"):
		n := len(m.ttls)
		for key := range m.ttls {
			delete(m.rows, key)
			delete(m.ttls, key)
		}
		return pgconn.NewCommandTag("DELETE " + strconv.Itoa(n)), nil
	case strings.HasPrefix(query, "DELETE"):
		delete(m.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

// MockRow implements pgx.Row for testing
type MockRow struct {
	value interface{}
	err   error
}

func (m *MockRow) Scan(dest ...interface{}) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		switch v := dest[0].(type) {
		case *bool:
			*v = m.value.(bool)
		case *string:
			*v = m.value.(string)
		case *int:
			*v = m.value.(int)
		}
	}
	return nil
}

// MockRows implements pgx.Rows over a single text column
type MockRows struct {
	values []string
	idx    int
}

func (r *MockRows) Close()                                       {}
func (r *MockRows) Err() error                                   { return nil }
func (r *MockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *MockRows) RawValues() [][]byte                          { return nil }
func (r *MockRows) Conn() *pgx.Conn                              { return nil }

func (r *MockRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}

func (r *MockRows) Scan(dest ...interface{}) error {
	*dest[0].(*string) = r.values[r.idx-1]
	return nil
}

func (r *MockRows) Values() ([]interface{}, error) {
	return []interface{}{r.values[r.idx-1]}, nil
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := NewMockDB()
	store := NewPostgresStore(db, "", nil)

	require.NoError(t, store.EnsureSchema(ctx))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], `CREATE TABLE IF NOT EXISTS "job_coordination"`)

	_, err := store.Get(ctx, "/reports/config/cron")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "/reports/config/cron", "@hourly"))
	value, err := store.Get(ctx, "/reports/config/cron")
	require.NoError(t, err)
	assert.Equal(t, "@hourly", value)

	exists, err := store.Exists(ctx, "/reports/config/cron")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.PutEphemeral(ctx, "/reports/servers/a/status", "READY", 15_000_000_000))
	assert.Equal(t, int64(15000), db.ttls["/reports/servers/a/status"])

	keys, err := store.List(ctx, "/reports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/reports/config/cron", "/reports/servers/a/status"}, keys)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	require.NoError(t, store.Delete(ctx, "/reports/config/cron"))
	exists, err = store.Exists(ctx, "/reports/config/cron")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Ping(ctx))
}

func TestPostgresStore_QuotesTable(t *testing.T) {
	db := NewMockDB()
	store := NewPostgresStore(db, `jobs"; DROP TABLE users; --`, nil)

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.Contains(t, db.execs[0], `"jobs""; DROP TABLE users; --"`)
}

func TestPostgresStore_Errors(t *testing.T) {
	ctx := context.Background()
	db := NewMockDB()
	db.failErr = errors.New("connection refused")
	store := NewPostgresStore(db, "coordination", nil)

	_, err := store.Get(ctx, "/reports/config/cron")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Put(ctx, "/reports/config/cron", "@hourly"))
	assert.Error(t, store.Ping(ctx))
	_, err = store.List(ctx, "/")
	assert.Error(t, err)
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	store := NewPostgresStore(NewMockDB(), "", func() { closed = true })

	require.NoError(t, store.Close())
	assert.True(t, closed)
}
