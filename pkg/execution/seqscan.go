package execution

import (
	"fmt"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/database"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
)

// SeqScan reads every tuple of one table in page order. Emitted tuples carry
// a schema whose field names are prefixed with the scan's table alias, so a
// planner can tell apart the two sides of a self-join.
type SeqScan struct {
	base      *BaseIterator
	ctx       *database.Context
	tid       *transaction.TransactionID
	tableID   int
	alias     string
	fileIter  page.TupleIterator
	tupleDesc *tuple.TupleDescription
}

// NewSeqScan creates a sequential scan of tableID under the given alias.
func NewSeqScan(ctx *database.Context, tid *transaction.TransactionID, tableID int, alias string) (*SeqScan, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	ss := &SeqScan{
		ctx:     ctx,
		tid:     tid,
		tableID: tableID,
		alias:   alias,
	}
	if err := ss.reset(tableID, alias); err != nil {
		return nil, err
	}

	ss.base = NewBaseIterator(ss.readNext)
	return ss, nil
}

// reset rebinds the scan to a table and alias, rebuilding the prefixed
// schema. The worker uses it to localize a shipped plan.
func (ss *SeqScan) reset(tableID int, alias string) error {
	td, err := ss.ctx.Catalog.TupleDesc(tableID)
	if err != nil {
		return fmt.Errorf("failed to get tuple desc for table %d: %v", tableID, err)
	}

	prefix := alias
	if prefix == "" {
		prefix = "null"
	}

	names := make([]string, td.NumFields())
	for i := range names {
		name, _ := td.FieldName(i)
		names[i] = prefix + "." + name
	}

	prefixed, err := tuple.NewTupleDesc(td.Types, names)
	if err != nil {
		return err
	}

	ss.tableID = tableID
	ss.alias = alias
	ss.tupleDesc = prefixed
	return nil
}

// Reset rebinds the scan to a local table id, keeping or replacing the alias.
func (ss *SeqScan) Reset(tableID int, alias string) error {
	return ss.reset(tableID, alias)
}

// Alias returns the table alias this scan was created with.
func (ss *SeqScan) Alias() string {
	return ss.alias
}

// TableID returns the id of the table being scanned.
func (ss *SeqScan) TableID() int {
	return ss.tableID
}

func (ss *SeqScan) Open() error {
	f, err := ss.ctx.Catalog.DbFile(ss.tableID)
	if err != nil {
		return fmt.Errorf("failed to get db file for table %d: %v", ss.tableID, err)
	}

	ss.fileIter = f.Iterator(ss.tid, ss.ctx.Pool)
	if err := ss.fileIter.Open(); err != nil {
		return fmt.Errorf("failed to open file iterator: %v", err)
	}

	ss.base.MarkOpened()
	return nil
}

func (ss *SeqScan) readNext() (*tuple.Tuple, error) {
	if ss.fileIter == nil {
		return nil, fmt.Errorf("file iterator not initialized")
	}

	hasNext, err := ss.fileIter.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, nil
	}

	t, err := ss.fileIter.Next()
	if err != nil {
		return nil, err
	}

	// Re-dress the tuple in the alias-prefixed schema.
	out := tuple.NewTuple(ss.tupleDesc)
	for i := 0; i < ss.tupleDesc.NumFields(); i++ {
		field, err := t.Field(i)
		if err != nil {
			return nil, err
		}
		if err := out.SetField(i, field); err != nil {
			return nil, err
		}
	}
	out.RecordID = t.RecordID
	return out, nil
}

func (ss *SeqScan) TupleDesc() *tuple.TupleDescription {
	return ss.tupleDesc
}

// Rewind restarts the scan from page 0.
func (ss *SeqScan) Rewind() error {
	if ss.fileIter == nil {
		return fmt.Errorf("iterator not opened")
	}
	if err := ss.fileIter.Rewind(); err != nil {
		return err
	}
	ss.base.ClearCache()
	return nil
}

func (ss *SeqScan) Close() error {
	if ss.fileIter != nil {
		ss.fileIter.Close()
		ss.fileIter = nil
	}
	return ss.base.Close()
}

func (ss *SeqScan) HasNext() (bool, error)      { return ss.base.HasNext() }
func (ss *SeqScan) Next() (*tuple.Tuple, error) { return ss.base.Next() }

func (ss *SeqScan) Children() []DbIterator {
	return nil
}

func (ss *SeqScan) SetChildren(children []DbIterator) {}
