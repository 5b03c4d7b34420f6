package parsers

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database drivers
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name can be used as a table or column name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// OpenDatabase opens a read-only handle for table sources
func OpenDatabase(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "database.driver", driver,
			fmt.Errorf("supported drivers are %s and %s", DriverPostgres, DriverSQLite))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "database.dsn", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.FileError(errors.CodeSourceQuery, driver, err).
			WithSuggestion("Check that the database is reachable and the DSN is correct")
	}
	return db, nil
}

// TableQuery selects the rows of one table matching equality filters
type TableQuery struct {
	Table   string
	Filters map[string]string
}

// Validate checks table and filter identifiers
func (q *TableQuery) Validate() error {
	if !ValidIdentifier(q.Table) {
		return fmt.Errorf("invalid table name %q", q.Table)
	}
	for column := range q.Filters {
		if !ValidIdentifier(column) {
			return fmt.Errorf("invalid filter column %q", column)
		}
	}
	return nil
}

// Statement builds the SELECT statement and its arguments, filters in column order
func (q *TableQuery) Statement() (string, []interface{}) {
	columns := make([]string, 0, len(q.Filters))
	for column := range q.Filters {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	statement := "SELECT * FROM " + q.Table
	args := make([]interface{}, 0, len(columns))
	conditions := make([]string, 0, len(columns))
	for i, column := range columns {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, q.Filters[column])
	}
	if len(conditions) > 0 {
		statement += " WHERE " + strings.Join(conditions, " AND ")
	}
	return statement, args
}

// ReadTable runs the query and returns its rows keyed by normalized column name
func ReadTable(ctx context.Context, db *sql.DB, query TableQuery) (*Table, error) {
	if err := query.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "table", query.Table, err)
	}

	statement, args := query.Statement()
	log := logger.GetGlobalLogger().WithComponent("parsers").WithField("table", query.Table)
	log.WithField("statement", statement).Debug("Querying table source")

	rows, err := db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, errors.FileError(errors.CodeSourceQuery, query.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.FileError(errors.CodeSourceQuery, query.Table, err)
	}

	var records [][]string
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.FileError(errors.CodeSourceQuery, query.Table, err)
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = sqlValueString(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.FileError(errors.CodeSourceQuery, query.Table, err)
	}

	log.WithField("rows", len(records)).Debug("Read table source")
	return buildTable(query.Table, columns, records, false)
}

// sqlValueString renders a scanned value; NULL becomes the empty string
func sqlValueString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case string:
		return value
	case time.Time:
		if value.Hour() == 0 && value.Minute() == 0 && value.Second() == 0 && value.Nanosecond() == 0 {
			return value.Format("2006-01-02")
		}
		return value.Format("2006-01-02 15:04:05")
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
