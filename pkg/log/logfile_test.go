package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"heapdb/pkg/concurrency/transaction"
)

func TestLogWriteAppendsAndForces(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "heapdb.log")

	lf, err := NewLogFile(path)
	require.NoError(err)
	defer lf.Close()

	tid := transaction.NewTransactionID()
	before := []byte{1, 2, 3}
	after := []byte{4, 5, 6, 7}

	require.NoError(lf.LogWrite(tid, before, after))
	require.NoError(lf.Force())

	info, err := os.Stat(path)
	require.NoError(err)
	require.Equal(int64(16+len(before)+len(after)), info.Size())

	// Records accumulate.
	require.NoError(lf.LogWrite(tid, before, after))
	require.NoError(lf.Force())

	info, err = os.Stat(path)
	require.NoError(err)
	require.Equal(int64(2*(16+len(before)+len(after))), info.Size())
}
