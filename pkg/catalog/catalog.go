package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"heapdb/pkg/storage/heap"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Catalog maps table ids to their backing files and names. It is loaded from
// a line-oriented schema file or populated directly by AddTable.
type Catalog struct {
	mu    sync.RWMutex
	files map[int]page.DbFile
	names map[string]int
	byID  map[int]string
}

func NewCatalog() *Catalog {
	return &Catalog{
		files: make(map[int]page.DbFile),
		names: make(map[string]int),
		byID:  make(map[int]string),
	}
}

// AddTable registers a table file under the given name. A table added twice
// keeps the most recent file.
func (c *Catalog) AddTable(f page.DbFile, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files[f.ID()] = f
	c.names[name] = f.ID()
	c.byID[f.ID()] = name
}

// DbFile returns the file backing the given table id.
func (c *Catalog) DbFile(tableID int) (page.DbFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.files[tableID]
	if !ok {
		return nil, fmt.Errorf("no table with id %d", tableID)
	}
	return f, nil
}

// TableID resolves a table name to its id.
func (c *Catalog) TableID(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.names[name]
	if !ok {
		return 0, fmt.Errorf("no table named %q", name)
	}
	return id, nil
}

// TableName returns the registered name for a table id.
func (c *Catalog) TableName(tableID int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[tableID]
}

// TupleDesc returns the schema of the given table.
func (c *Catalog) TupleDesc(tableID int) (*tuple.TupleDescription, error) {
	f, err := c.DbFile(tableID)
	if err != nil {
		return nil, err
	}
	return f.TupleDesc(), nil
}

// TableIDs returns the ids of every registered table.
func (c *Catalog) TableIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.files))
	for id := range c.files {
		ids = append(ids, id)
	}
	return ids
}

// LoadSchema reads a schema file and registers a heap file for every line.
// Each line has the form
//
//	name (field type, field type, ...)
//
// with types "int" and "string". The backing file is name.dat next to the
// schema file.
func (c *Catalog) LoadSchema(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open schema file: %w", err)
	}
	defer f.Close()

	baseDir := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, td, err := parseSchemaLine(line)
		if err != nil {
			return fmt.Errorf("bad schema line %q: %w", line, err)
		}

		hf, err := heap.NewHeapFile(filepath.Join(baseDir, name+".dat"), td)
		if err != nil {
			return err
		}
		c.AddTable(hf, name)
	}
	return scanner.Err()
}

func parseSchemaLine(line string) (string, *tuple.TupleDescription, error) {
	start := strings.Index(line, "(")
	end := strings.LastIndex(line, ")")
	if start < 0 || end < start {
		return "", nil, fmt.Errorf("missing field list")
	}

	name := strings.TrimSpace(line[:start])
	if name == "" {
		return "", nil, fmt.Errorf("missing table name")
	}

	var fieldTypes []types.Type
	var fieldNames []string
	for _, part := range strings.Split(line[start+1:end], ",") {
		tokens := strings.Fields(part)
		if len(tokens) != 2 {
			return "", nil, fmt.Errorf("bad field declaration %q", part)
		}

		fieldNames = append(fieldNames, tokens[0])
		switch strings.ToLower(tokens[1]) {
		case "int":
			fieldTypes = append(fieldTypes, types.IntType)
		case "string":
			fieldTypes = append(fieldTypes, types.StringType)
		default:
			return "", nil, fmt.Errorf("unknown field type %q", tokens[1])
		}
	}

	td, err := tuple.NewTupleDesc(fieldTypes, fieldNames)
	if err != nil {
		return "", nil, err
	}
	return name, td, nil
}
