package database

import (
	"fmt"
	"os"
	"path/filepath"

	"heapdb/pkg/catalog"
	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/log"
	"heapdb/pkg/memory"
	"heapdb/pkg/storage/page"
)

// Context bundles the catalog, buffer pool and log file of one database
// instance. It is threaded explicitly through operator constructors and the
// transaction driver; there are no process-wide singletons, so tests can run
// several instances side by side.
type Context struct {
	Catalog *catalog.Catalog
	Pool    *memory.BufferPool
	Log     *log.LogFile
}

// Open assembles a database instance over the given data directory, caching
// up to poolPages pages. A catalog.schema file in the directory, if present,
// is loaded.
func Open(dataDir string, poolPages int) (*Context, error) {
	if poolPages <= 0 {
		poolPages = page.DefaultPages
	}

	lf, err := log.NewLogFile(filepath.Join(dataDir, "heapdb.log"))
	if err != nil {
		return nil, err
	}

	cat := catalog.NewCatalog()
	ctx := &Context{
		Catalog: cat,
		Pool:    memory.NewBufferPool(poolPages, cat, lf),
		Log:     lf,
	}

	schema := filepath.Join(dataDir, "catalog.schema")
	if _, statErr := os.Stat(schema); statErr == nil {
		if err := cat.LoadSchema(schema); err != nil {
			return nil, err
		}
	}

	return ctx, nil
}

// NewContext assembles a database instance from existing parts.
func NewContext(cat *catalog.Catalog, pool *memory.BufferPool, lf *log.LogFile) *Context {
	return &Context{Catalog: cat, Pool: pool, Log: lf}
}

// Close flushes the pool and closes the log.
func (ctx *Context) Close() error {
	if err := ctx.Pool.FlushAllPages(); err != nil {
		return fmt.Errorf("failed to flush pages during shutdown: %v", err)
	}
	if ctx.Log != nil {
		return ctx.Log.Close()
	}
	return nil
}

// Transaction is the driver for one transaction's lifetime: begin, run the
// operator tree, then commit or abort. It is where a
// TransactionAbortedError unwinding out of the operators is handled.
type Transaction struct {
	id   *transaction.TransactionID
	ctx  *Context
	done bool
}

// Begin starts a new transaction.
func (ctx *Context) Begin() *Transaction {
	return &Transaction{
		id:  transaction.NewTransactionID(),
		ctx: ctx,
	}
}

func (t *Transaction) ID() *transaction.TransactionID {
	return t.id
}

// Commit flushes the transaction's pages and releases its locks.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("transaction %s already complete", t.id)
	}
	t.done = true
	return t.ctx.Pool.TransactionComplete(t.id, true)
}

// Abort discards the transaction's in-memory modifications and releases its
// locks.
func (t *Transaction) Abort() error {
	if t.done {
		return fmt.Errorf("transaction %s already complete", t.id)
	}
	t.done = true
	return t.ctx.Pool.TransactionComplete(t.id, false)
}

// Run executes fn inside the transaction, committing on success. When fn
// fails the transaction aborts; the original error is returned, so callers
// can test it with transaction.IsAborted and retry.
func (t *Transaction) Run(fn func(tid *transaction.TransactionID) error) error {
	if err := fn(t.id); err != nil {
		_ = t.Abort()
		return err
	}
	return t.Commit()
}
