package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *StoreError
		want string
	}{
		{
			name: "query",
			err:  queryError("users", "find", "SELECT 1", errors.New("boom")),
			want: "QUERY_EXECUTION table=users op=find: boom",
		},
		{
			name: "not found",
			err:  notFoundError("users", "update", 42),
			want: "NOT_FOUND table=users op=update key=42: record not found",
		},
		{
			name: "configuration",
			err:  configurationError("open", "unsupported dialect %q", "oracle"),
			want: `CONFIGURATION op=open: unsupported dialect "oracle"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestStoreErrorContext(t *testing.T) {
	err := cacheError("users", "get_by_id", "p:users:record:1", errors.New("down"))
	assert.Equal(t, map[string]string{
		"code":      "CACHE",
		"table":     "users",
		"operation": "get_by_id",
		"key":       "p:users:record:1",
	}, err.Context())

	q := queryError("users", "find", "SELECT * FROM users", errors.New("x"))
	assert.Equal(t, "SELECT * FROM users", q.Context()["statement"])
}

func TestErrorPredicatesUnwrap(t *testing.T) {
	cause := errors.New("cause")
	wrapped := fmt.Errorf("outer: %w", transactionError("t", "commit", cause))

	assert.True(t, IsTransactionError(wrapped))
	assert.False(t, IsQueryExecutionError(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	assert.True(t, IsConnectionError(connectionError("ping", cause)))
	assert.True(t, IsValidationError(validationError("t", "find", "bad")))
	assert.True(t, IsNotFoundError(notFoundError("t", "update", 1)))
	assert.True(t, IsCacheError(cacheError("t", "find", "k", cause)))
	assert.True(t, IsSerializationError(serializationError("t", "find", cause)))
	assert.True(t, IsConfigurationError(configurationError("open", "x")))
	assert.False(t, IsValidationError(cause))
	assert.False(t, IsValidationError(nil))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conn done", queryError("t", "find", "", sql.ErrConnDone), true},
		{"pool closed", queryError("t", "count", "", errors.New("sql: database is closed")), true},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), true},
		{"cache", cacheError("t", "get_by_id", "k", errors.New("down")), true},
		{"validation", validationError("t", "find", "bad"), false},
		{"not found", notFoundError("t", "update", 1), false},
		{"no rows", sql.ErrNoRows, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClosedDatabaseIsTransientConnectionError(t *testing.T) {
	db := createTestDB(t)
	e := newUserEngine(t, db)
	require.NoError(t, db.Close())

	_, err := e.Count(context.Background())
	require.Error(t, err)
	assert.True(t, IsConnectionError(err), "got %v", err)
	assert.False(t, IsQueryExecutionError(err))
	assert.True(t, IsTransient(err))

	_, err = e.UpdateMany(context.Background(), []Change[int64, user]{{ID: 1, Record: user{Name: "x"}}})
	require.Error(t, err)
	assert.True(t, IsTransient(err), "got %v", err)
}
