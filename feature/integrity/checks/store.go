package checks

import (
	"fmt"

	"restore-manager/core/database"

	"gorm.io/gorm"
)

// StoreReport describes the schema of the local key-value table.
type StoreReport struct {
	Driver         string   `json:"driver"`
	Table          string   `json:"table"`
	Matched        bool     `json:"matched"`
	MissingColumns []string `json:"missing_columns"`
	Errors         []string `json:"errors"`
}

// CheckStoreSchema compares the columns of table with the expected list.
// Inspection failures are reported in the result rather than returned.
func CheckStoreSchema(db *gorm.DB, table string, expected []string) (*StoreReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	report := &StoreReport{
		Driver:         db.Dialector.Name(),
		Table:          table,
		Matched:        true,
		MissingColumns: []string{},
		Errors:         []string{},
	}

	missing, err := database.MissingColumns(db, table, expected)
	if err != nil {
		report.Matched = false
		report.Errors = append(report.Errors, fmt.Sprintf("Failed to inspect table %s: %v", table, err))
		return report, nil
	}
	if len(missing) == len(expected) {
		report.Errors = append(report.Errors, fmt.Sprintf("Table %s does not exist", table))
	}
	if len(missing) > 0 {
		report.Matched = false
		report.MissingColumns = missing
	}
	return report, nil
}
