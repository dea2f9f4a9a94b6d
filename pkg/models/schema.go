package models

// Column describes one column of the statistics table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"notnull"`
	PrimaryKey bool   `json:"pk"`
}

// TableSchema is the ordered column list of a table.
// It is loaded once per request and not modified afterwards.
type TableSchema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Available reports whether any columns were loaded.
func (s *TableSchema) Available() bool {
	return s != nil && len(s.Columns) > 0
}

// ColumnNames returns the column names in table order.
func (s *TableSchema) ColumnNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
