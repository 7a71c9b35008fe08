package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"heapdb/pkg/execution"
)

var scanCmd = &cobra.Command{
	Use:   "scan <table>",
	Short: "Print every tuple of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  scanRun,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func scanRun(cmd *cobra.Command, args []string) error {
	ctx, err := openDatabase()
	if err != nil {
		return err
	}
	defer ctx.Close()

	tableName := args[0]
	tableID, err := ctx.Catalog.TableID(tableName)
	if err != nil {
		return err
	}

	txn := ctx.Begin()
	scan, err := execution.NewSeqScan(ctx, txn.ID(), tableID, tableName)
	if err != nil {
		_ = txn.Abort()
		return err
	}

	if err := scan.Open(); err != nil {
		_ = txn.Abort()
		return err
	}
	defer scan.Close()

	out := tablewriter.NewWriter(os.Stdout)
	desc := scan.TupleDesc()
	header := make([]string, desc.NumFields())
	for i := range header {
		header[i], _ = desc.FieldName(i)
	}
	out.SetHeader(header)

	rows := 0
	for {
		hasNext, err := scan.HasNext()
		if err != nil {
			_ = txn.Abort()
			return err
		}
		if !hasNext {
			break
		}

		t, err := scan.Next()
		if err != nil {
			_ = txn.Abort()
			return err
		}
		out.Append(strings.Split(t.String(), "\t"))
		rows++
	}

	out.Render()
	fmt.Printf("%d rows\n", rows)
	return txn.Commit()
}
