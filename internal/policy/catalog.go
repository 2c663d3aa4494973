package policy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// ParseCatalog reads the known-process CSV catalog (header row with at
// least "exe" and "use_hint" columns) and builds a classification table
// from the use hints. Any hint containing "Work" (e.g. "System/Work")
// counts as work.
func ParseCatalog(r io.Reader) (domain.ClassificationTable, []domain.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.ClassificationTable{}, nil, fmt.Errorf("failed to read catalog header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	exeCol, ok := cols["exe"]
	if !ok {
		return domain.ClassificationTable{}, nil, errors.New("catalog has no exe column")
	}
	hintCol, ok := cols["use_hint"]
	if !ok {
		return domain.ClassificationTable{}, nil, errors.New("catalog has no use_hint column")
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	table := domain.ClassificationTable{MonitorTimeout: DefaultMonitorTimeout}
	var entries []domain.CatalogEntry

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.ClassificationTable{}, nil, fmt.Errorf("failed to read catalog row: %w", err)
		}
		if exeCol >= len(rec) {
			continue
		}

		exe := strings.ToLower(strings.TrimSpace(rec[exeCol]))
		if exe == "" {
			continue
		}
		hint := ""
		if hintCol < len(rec) {
			hint = strings.TrimSpace(rec[hintCol])
		}

		entries = append(entries, domain.CatalogEntry{
			Exe:      exe,
			Category: field(rec, "category"),
			Product:  field(rec, "product"),
			UseHint:  hint,
		})

		switch {
		case hint == "Work":
			table.WorkProcesses = append(table.WorkProcesses, exe)
		case hint == "Entertainment":
			table.EntertainmentProcesses = append(table.EntertainmentProcesses, exe)
		case hint == "Mixed":
			table.MixedProcesses = append(table.MixedProcesses, exe)
		case strings.Contains(hint, "Work"):
			table.WorkProcesses = append(table.WorkProcesses, exe)
		}
	}

	return table, entries, nil
}
