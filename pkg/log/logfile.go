package log

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"heapdb/pkg/concurrency/transaction"
)

// LogFile is the write-ahead log surface the buffer pool flushes through.
// Records are appended before the corresponding page write, and Force makes
// everything appended so far durable. The record format is internal; no
// recovery manager reads it back here.
type LogFile struct {
	mu   sync.Mutex
	file *os.File
}

func NewLogFile(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &LogFile{file: f}, nil
}

// LogWrite appends an update record carrying the before and after images of
// a page modified by tid.
func (lf *LogFile) LogWrite(tid *transaction.TransactionID, before, after []byte) error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	header := make([]byte, 16)
	binary.BigEndian.PutUint64(header[0:], uint64(tid.ID()))
	binary.BigEndian.PutUint32(header[8:], uint32(len(before)))
	binary.BigEndian.PutUint32(header[12:], uint32(len(after)))

	if _, err := lf.file.Write(header); err != nil {
		return fmt.Errorf("failed to append log header: %w", err)
	}
	if _, err := lf.file.Write(before); err != nil {
		return fmt.Errorf("failed to append before image: %w", err)
	}
	if _, err := lf.file.Write(after); err != nil {
		return fmt.Errorf("failed to append after image: %w", err)
	}
	return nil
}

// Force flushes all appended records to stable storage.
func (lf *LogFile) Force() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Sync()
}

func (lf *LogFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Close()
}
