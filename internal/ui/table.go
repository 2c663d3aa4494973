// Package ui provides terminal output helpers for the CLI.
package ui

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table wraps tablewriter with the CLI's formatting.
type Table struct {
	writer *tablewriter.Table
}

// NewTable creates a borderless table with bold cyan headers.
func NewTable(out io.Writer, headers []string) *Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("  ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	colors := make([]tablewriter.Colors, len(headers))
	for i := range colors {
		colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor}
	}
	table.SetHeaderColor(colors...)

	return &Table{writer: table}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(row ...string) {
	t.writer.Append(row)
}

// Render prints the table.
func (t *Table) Render() {
	t.writer.Render()
}
