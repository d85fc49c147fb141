// Package mysqltest provides a scripted database/sql driver for exercising
// MySQL-backed code without a server. Each test queues the exact sequence of
// operations it expects; any deviation is returned as a driver error.
package mysqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// OpType identifies a scripted driver call.
type OpType int

const (
	OpExec OpType = iota
	OpQuery
	OpBegin
	OpCommit
	OpRollback
)

func (t OpType) String() string {
	switch t {
	case OpExec:
		return "exec"
	case OpQuery:
		return "query"
	case OpBegin:
		return "begin"
	case OpCommit:
		return "commit"
	case OpRollback:
		return "rollback"
	}
	return "unknown"
}

// Op is one expected call. An empty Query matches any statement.
type Op struct {
	Type   OpType
	Query  string
	Result Result
	Rows   Rows
	Err    error
	// Args, when non-nil, is compared against the bound arguments.
	Args []driver.Value
}

// Result is returned by Exec operations.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// driverResult adapts Result to driver.Result.
type driverResult struct{ r Result }

func (d driverResult) LastInsertId() (int64, error) { return d.r.LastInsertID, nil }
func (d driverResult) RowsAffected() (int64, error) { return d.r.RowsAffected, nil }

// Rows is returned by Query operations.
type Rows struct {
	Columns []string
	Values  [][]driver.Value
}

func Exec(query string, result Result) Op { return Op{Type: OpExec, Query: query, Result: result} }
func Query(query string, rows Rows) Op    { return Op{Type: OpQuery, Query: query, Rows: rows} }
func Begin() Op                           { return Op{Type: OpBegin} }
func Commit() Op                          { return Op{Type: OpCommit} }
func Rollback() Op                        { return Op{Type: OpRollback} }

// Driver replays the scripted operations in order.
type Driver struct {
	mu  sync.Mutex
	ops []Op
	idx int
}

var seq atomic.Int32

// Open registers a fresh driver and returns a single-connection *sql.DB bound to it.
func Open(t testing.TB, ops ...Op) (*sql.DB, *Driver) {
	t.Helper()
	drv := &Driver{ops: ops}
	name := fmt.Sprintf("mysqltest-%d", seq.Add(1))
	sql.Register(name, drv)
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

// AssertConsumed fails the test when scripted operations remain.
func (d *Driver) AssertConsumed(t testing.TB) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", d.idx, len(d.ops))
	}
}

func (d *Driver) Open(string) (driver.Conn, error) {
	return &conn{driver: d}, nil
}

func (d *Driver) next(expected OpType, query string, args []driver.NamedValue) (*Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s: %q", expected, normalize(query))
	}
	op := &d.ops[d.idx]
	if op.Type != expected {
		return nil, fmt.Errorf("expected %s, got %s", op.Type, expected)
	}
	d.idx++
	if op.Query != "" && normalize(op.Query) != normalize(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalize(op.Query), normalize(query))
	}
	if op.Args != nil {
		if len(op.Args) != len(args) {
			return nil, fmt.Errorf("want %d args, got %d", len(op.Args), len(args))
		}
		for i, want := range op.Args {
			if fmt.Sprint(want) != fmt.Sprint(args[i].Value) {
				return nil, fmt.Errorf("arg %d: want %v got %v", i+1, want, args[i].Value)
			}
		}
	}
	return op, nil
}

type conn struct {
	driver *Driver
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(OpBegin, "", nil)
	if err != nil {
		return nil, err
	}
	if op.Err != nil {
		return nil, op.Err
	}
	return &tx{driver: c.driver}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(OpExec, query, args)
	if err != nil {
		return nil, err
	}
	if op.Err != nil {
		return nil, op.Err
	}
	return driverResult{op.Result}, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(OpQuery, query, args)
	if err != nil {
		return nil, err
	}
	if op.Err != nil {
		return nil, op.Err
	}
	return &rows{columns: op.Rows.Columns, values: op.Rows.Values}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

type tx struct {
	driver *Driver
}

func (t *tx) Commit() error {
	op, err := t.driver.next(OpCommit, "", nil)
	if err != nil {
		return err
	}
	return op.Err
}

func (t *tx) Rollback() error {
	op, err := t.driver.next(OpRollback, "", nil)
	if err != nil {
		return err
	}
	return op.Err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
