package join

import (
	"fmt"

	"github.com/google/btree"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Join implements a general θ join over two child streams. On the first
// fetch both children are drained into per-side hash tables keyed on the
// join fields; candidate bucket pairs are then enumerated with an explicit
// cursor whose advancement is operator-aware, so the enumeration does work
// proportional to the actual join result rather than the full cross product.
type Join struct {
	base      *execution.BaseIterator
	predicate *JoinPredicate
	left      execution.DbIterator
	right     execution.DbIterator
	tupleDesc *tuple.TupleDescription

	hashed bool
	r1     map[string][]*tuple.Tuple
	r2     map[string][]*tuple.Tuple
	keys1  []types.Field
	keys2  []types.Field

	cursor cursor
}

// cursor is the enumeration state: i indexes keys1, j indexes keys2, a and b
// index within the buckets r1[keys1[i]] and r2[keys2[j]]. Advancement order
// is b innermost, then a, then j or i depending on the operator.
type cursor struct {
	i, j, a, b int
}

// NewJoin creates a join of two children under the given predicate.
func NewJoin(predicate *JoinPredicate, left, right execution.DbIterator) (*Join, error) {
	if predicate == nil {
		return nil, fmt.Errorf("join predicate cannot be nil")
	}
	if left == nil || right == nil {
		return nil, fmt.Errorf("child operators cannot be nil")
	}

	combined := tuple.Combine(left.TupleDesc(), right.TupleDesc())
	if combined == nil {
		return nil, fmt.Errorf("child operators must have valid tuple descriptors")
	}

	j := &Join{
		predicate: predicate,
		left:      left,
		right:     right,
		tupleDesc: combined,
	}
	j.base = execution.NewBaseIterator(j.readNext)
	return j, nil
}

func (j *Join) Open() error {
	if err := j.left.Open(); err != nil {
		return fmt.Errorf("failed to open left child: %v", err)
	}
	if err := j.right.Open(); err != nil {
		return fmt.Errorf("failed to open right child: %v", err)
	}

	j.base.MarkOpened()
	return nil
}

// TupleDesc returns the concatenation of both child schemas.
func (j *Join) TupleDesc() *tuple.TupleDescription {
	return j.tupleDesc
}

// Rewind resets the enumeration cursor but keeps the hash tables.
func (j *Join) Rewind() error {
	j.cursor = cursor{}
	j.base.ClearCache()
	return nil
}

// Close frees the hash tables.
func (j *Join) Close() error {
	j.r1 = nil
	j.r2 = nil
	j.keys1 = nil
	j.keys2 = nil
	j.hashed = false
	j.cursor = cursor{}

	if j.left != nil {
		j.left.Close()
	}
	if j.right != nil {
		j.right.Close()
	}
	return j.base.Close()
}

func (j *Join) HasNext() (bool, error)      { return j.base.HasNext() }
func (j *Join) Next() (*tuple.Tuple, error) { return j.base.Next() }

func (j *Join) Children() []execution.DbIterator {
	return []execution.DbIterator{j.left, j.right}
}

func (j *Join) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		j.left = children[0]
	}
	if len(children) > 1 {
		j.right = children[1]
	}
}

// fieldItem orders fields inside the btree key set.
type fieldItem struct {
	field types.Field
}

func (fi fieldItem) Less(than btree.Item) bool {
	less, err := fi.field.Compare(types.LessThan, than.(fieldItem).field)
	return err == nil && less
}

// buildHashTables drains both children into the per-side hash tables and
// materializes the sorted key sequences. For equality joins the key sets are
// intersected first, skipping buckets that cannot match.
func (j *Join) buildHashTables() error {
	j.r1 = make(map[string][]*tuple.Tuple)
	j.r2 = make(map[string][]*tuple.Tuple)

	tree1 := btree.New(8)
	tree2 := btree.New(8)

	if err := drainChild(j.left, j.predicate.Field1(), j.r1, tree1); err != nil {
		return err
	}
	if err := drainChild(j.right, j.predicate.Field2(), j.r2, tree2); err != nil {
		return err
	}

	if j.predicate.Op() == types.Equals {
		for key := range j.r1 {
			if _, ok := j.r2[key]; !ok {
				delete(j.r1, key)
			}
		}
		for key := range j.r2 {
			if _, ok := j.r1[key]; !ok {
				delete(j.r2, key)
			}
		}
	}

	j.keys1 = sortedKeys(tree1, j.r1)
	j.keys2 = sortedKeys(tree2, j.r2)
	j.cursor = cursor{}
	j.hashed = true
	return nil
}

func drainChild(child execution.DbIterator, fieldIndex int, buckets map[string][]*tuple.Tuple, tree *btree.BTree) error {
	for {
		hasNext, err := child.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			return nil
		}

		t, err := child.Next()
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}

		key, err := t.Field(fieldIndex)
		if err != nil || key == nil {
			continue
		}

		keyStr := key.String()
		if _, ok := buckets[keyStr]; !ok {
			tree.ReplaceOrInsert(fieldItem{field: key})
		}
		buckets[keyStr] = append(buckets[keyStr], t)
	}
}

// sortedKeys exports the btree's ascending key order, dropping keys pruned
// from the bucket map by the equality intersection.
func sortedKeys(tree *btree.BTree, buckets map[string][]*tuple.Tuple) []types.Field {
	keys := make([]types.Field, 0, len(buckets))
	tree.Ascend(func(item btree.Item) bool {
		field := item.(fieldItem).field
		if _, ok := buckets[field.String()]; ok {
			keys = append(keys, field)
		}
		return true
	})
	return keys
}

// done reports whether the cursor has run off either key sequence.
func (j *Join) done() bool {
	return j.cursor.i >= len(j.keys1) || j.cursor.j >= len(j.keys2)
}

// readNext pulls candidate pairs off the cursor. The cursor is advanced
// before the emission decision takes effect, so the state never points at an
// already-returned pair.
func (j *Join) readNext() (*tuple.Tuple, error) {
	if !j.hashed {
		if err := j.buildHashTables(); err != nil {
			return nil, err
		}
	}

	for !j.done() {
		t1 := j.r1[j.keys1[j.cursor.i].String()][j.cursor.a]
		t2 := j.r2[j.keys2[j.cursor.j].String()][j.cursor.b]

		matches, err := j.predicate.Filter(t1, t2)
		if err != nil {
			return nil, err
		}

		j.advance()

		if matches {
			return tuple.CombineTuples(t1, t2)
		}
	}

	return nil, nil
}

// advance is the cursor transition table. b moves innermost, then a, then
// the key indexes in an operator-aware order:
//
//   - Equals: both sorted key sequences hold the same keys after the
//     intersection, so i and j move in lock step.
//   - GreaterThan / GreaterThanOrEqual: keys2 ascends, so the first key that
//     fails the predicate ends this row of keys1.
//   - LessThan / LessThanOrEqual: scan forward in keys2 until the predicate
//     holds again.
//   - NotEqual: every keys2 bucket pairs with every keys1 bucket.
func (j *Join) advance() {
	c := &j.cursor
	bucket1 := j.r1[j.keys1[c.i].String()]
	bucket2 := j.r2[j.keys2[c.j].String()]

	if c.b < len(bucket2)-1 {
		c.b++
		return
	}
	c.b = 0

	switch j.predicate.Op() {
	case types.Equals:
		if c.a < len(bucket1)-1 {
			c.a++
			return
		}
		c.a = 0

		if c.i < len(j.keys1)-1 {
			c.i++
			c.j = c.i
		} else {
			c.i = len(j.keys1)
			c.j = len(j.keys2)
		}
		return

	case types.GreaterThan, types.GreaterThanOrEqual:
		if c.j < len(j.keys2)-1 && j.keyPairMatches(c.i, c.j+1) {
			c.j++
			return
		}
		c.j = 0

	case types.LessThan, types.LessThanOrEqual:
		for c.j < len(j.keys2)-1 {
			c.j++
			if j.keyPairMatches(c.i, c.j) {
				return
			}
		}
		c.j = 0

	case types.NotEqual:
		if c.j < len(j.keys2)-1 {
			c.j++
			return
		}
		c.j = 0
	}

	if c.a < len(bucket1)-1 {
		c.a++
		return
	}
	c.a = 0

	if c.i < len(j.keys1)-1 {
		c.i++
	} else {
		c.i = len(j.keys1)
		c.j = len(j.keys2)
	}
}

func (j *Join) keyPairMatches(i, jj int) bool {
	ok, err := j.keys1[i].Compare(j.predicate.Op(), j.keys2[jj])
	return err == nil && ok
}
