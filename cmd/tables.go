package cmd

import (
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables in the catalog",
	RunE:  tablesRun,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func tablesRun(cmd *cobra.Command, args []string) error {
	ctx, err := openDatabase()
	if err != nil {
		return err
	}
	defer ctx.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Table", "ID", "Schema", "Pages"})

	for _, id := range ctx.Catalog.TableIDs() {
		f, err := ctx.Catalog.DbFile(id)
		if err != nil {
			continue
		}
		table.Append([]string{
			ctx.Catalog.TableName(id),
			strconv.Itoa(id),
			f.TupleDesc().String(),
			strconv.Itoa(f.NumPages()),
		})
	}

	table.Render()
	return nil
}
