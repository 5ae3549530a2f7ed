package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeConnection indicates the database could not be reached or the
	// pool is unusable.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeQueryExecution indicates a statement failed on the backend.
	ErrCodeQueryExecution ErrorCode = "QUERY_EXECUTION"

	// ErrCodeValidation indicates a request the engine refuses before
	// touching the backend.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates a record that had to exist did not.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeCache indicates a cache backend failure.
	ErrCodeCache ErrorCode = "CACHE"

	// ErrCodeSerialization indicates a record could not be encoded or
	// decoded.
	ErrCodeSerialization ErrorCode = "SERIALIZATION"

	// ErrCodeTransaction indicates begin, commit or rollback failed.
	ErrCodeTransaction ErrorCode = "TRANSACTION"

	// ErrCodeConfiguration indicates invalid engine or database settings.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
)

// StoreError is the error type returned by Engine operations. It carries
// enough context to log the failure without the caller re-deriving it.
type StoreError struct {
	Code      ErrorCode
	Table     string
	Operation string

	// Statement is the SQL text for query failures.
	Statement string

	// Key is the cache key for cache failures, or the record id for
	// not-found errors.
	Key string

	// Message is set for errors that have no underlying cause.
	Message string

	Err error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Table != "" {
		fmt.Fprintf(&b, " table=%s", e.Table)
	}
	if e.Operation != "" {
		fmt.Fprintf(&b, " op=%s", e.Operation)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StoreError) Unwrap() error { return e.Err }

// Context returns the diagnostic fields of the error for structured logs.
func (e *StoreError) Context() map[string]string {
	ctx := map[string]string{"code": string(e.Code)}
	if e.Table != "" {
		ctx["table"] = e.Table
	}
	if e.Operation != "" {
		ctx["operation"] = e.Operation
	}
	if e.Statement != "" {
		ctx["statement"] = e.Statement
	}
	if e.Key != "" {
		ctx["key"] = e.Key
	}
	return ctx
}

func connectionError(op string, err error) *StoreError {
	return &StoreError{Code: ErrCodeConnection, Operation: op, Err: err}
}

// closedDBMessage is the text of the unexported error database/sql
// returns once DB.Close has been called.
const closedDBMessage = "sql: database is closed"

// isPoolClosed reports whether err comes from using a closed pool.
func isPoolClosed(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if err.Error() == closedDBMessage {
			return true
		}
	}
	return false
}

// queryError wraps a statement failure. A closed pool is reported as a
// connection error rather than a failure of the statement.
func queryError(table, op, statement string, err error) *StoreError {
	code := ErrCodeQueryExecution
	if isPoolClosed(err) {
		code = ErrCodeConnection
	}
	return &StoreError{Code: code, Table: table, Operation: op, Statement: statement, Err: err}
}

func validationError(table, op, format string, args ...any) *StoreError {
	return &StoreError{Code: ErrCodeValidation, Table: table, Operation: op, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(table, op string, id any) *StoreError {
	return &StoreError{Code: ErrCodeNotFound, Table: table, Operation: op, Key: fmt.Sprint(id), Message: "record not found"}
}

func cacheError(table, op, key string, err error) *StoreError {
	return &StoreError{Code: ErrCodeCache, Table: table, Operation: op, Key: key, Err: err}
}

func serializationError(table, op string, err error) *StoreError {
	return &StoreError{Code: ErrCodeSerialization, Table: table, Operation: op, Err: err}
}

func transactionError(table, op string, err error) *StoreError {
	if isPoolClosed(err) {
		return &StoreError{Code: ErrCodeConnection, Table: table, Operation: op, Err: err}
	}
	return &StoreError{Code: ErrCodeTransaction, Table: table, Operation: op, Err: err}
}

func configurationError(op, format string, args ...any) *StoreError {
	return &StoreError{Code: ErrCodeConfiguration, Operation: op, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsConnectionError reports whether err is a connection error.
func IsConnectionError(err error) bool { return hasCode(err, ErrCodeConnection) }

// IsQueryExecutionError reports whether err is a statement failure.
func IsQueryExecutionError(err error) bool { return hasCode(err, ErrCodeQueryExecution) }

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsNotFoundError reports whether err is a not-found error.
func IsNotFoundError(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsCacheError reports whether err is a cache error.
func IsCacheError(err error) bool { return hasCode(err, ErrCodeCache) }

// IsSerializationError reports whether err is a serialization error.
func IsSerializationError(err error) bool { return hasCode(err, ErrCodeSerialization) }

// IsTransactionError reports whether err is a transaction error.
func IsTransactionError(err error) bool { return hasCode(err, ErrCodeTransaction) }

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsTransient reports whether retrying the operation might succeed: the
// pool was closed or a connection went bad, the network failed, a
// deadline passed, or the cache backend failed. The store itself never
// retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsCacheError(err) {
		return true
	}
	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrConnDone),
		isPoolClosed(err),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return true
	}
	return false
}
