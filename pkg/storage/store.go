// Package storage implements the subject-scoped SQL table store: every
// ingested record batch lands in a table named "{subject}_{unixSeconds}",
// and every such table's policy document lives in a separate policy
// database keyed by the same table name.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/seera-networks/yakserv/pkg/policy"

	_ "modernc.org/sqlite"
)

// Store owns the storage and policy SQLite databases. Each is opened twice:
// a read-write handle for table/policy creation and ingest, and a read-only
// handle for the query paths a subject's DoGet actually drives — mirroring
// the per-call connection flags the table store this was adapted from uses
// (write paths open READ_WRITE|CREATE, read paths open READ_ONLY).
type Store struct {
	data   *sql.DB
	dataRO *sql.DB
	policy *sql.DB
	polRO  *sql.DB
}

// Open opens (creating if necessary) the storage database at dataPath and
// the policy database at policyPath.
func Open(dataPath, policyPath string) (*Store, error) {
	data, err := sql.Open("sqlite", dataPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open data db: %w", err)
	}
	dataRO, err := openReadOnly(dataPath, data)
	if err != nil {
		return nil, fmt.Errorf("storage: open data db read-only: %w", err)
	}
	pol, err := sql.Open("sqlite", policyPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open policy db: %w", err)
	}
	polRO, err := openReadOnly(policyPath, pol)
	if err != nil {
		return nil, fmt.Errorf("storage: open policy db read-only: %w", err)
	}
	s := &Store{data: data, dataRO: dataRO, policy: pol, polRO: polRO}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// openReadOnly opens a second, read-only handle onto path, so query paths
// never share a writable connection with the ingest path. ":memory:" has no
// second connection that can see the first's data, so it reuses rw instead
// — tests that pass ":memory:" get a working store, not a read-only view of
// an empty database.
func openReadOnly(path string, rw *sql.DB) (*sql.DB, error) {
	if path == ":memory:" {
		return rw, nil
	}
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.policy.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS policy (table_name TEXT NOT NULL, json TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("storage: migrate policy db: %w", err)
	}
	return nil
}

// Close closes all underlying database handles (deduplicating the
// ":memory:" case, where the read-only handle is the same *sql.DB as its
// writable counterpart).
func (s *Store) Close() error {
	seen := make(map[*sql.DB]bool, 4)
	var firstErr error
	for _, db := range []*sql.DB{s.data, s.dataRO, s.policy, s.polRO} {
		if seen[db] {
			continue
		}
		seen[db] = true
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func arrowTypeToSQL(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.INT32:
		return "INTEGER"
	case arrow.FLOAT32:
		return "REAL"
	case arrow.STRING:
		return "TEXT"
	default:
		return "BLOB"
	}
}

// CreateTable creates a new table named "{subject}_{unixSeconds}" with one
// column per schema field, using arrowTypeToSQL's type mapping, and stores
// pol (if non-empty) in the policy database keyed by that table name.
// CreateTable returns the epoch-seconds target string the caller must
// combine with subject for every later reference to this table.
func (s *Store) CreateTable(ctx context.Context, subject string, schema *arrow.Schema, pol string) (string, error) {
	target := strconv.FormatInt(time.Now().Unix(), 10)
	tableName := subject + "_" + target
	if !policy.IsValidSQLIdentifier(tableName) {
		return "", fmt.Errorf("storage: invalid table identifier %q", tableName)
	}

	ddl := "CREATE TABLE " + tableName + " ("
	for i, f := range schema.Fields() {
		if !policy.IsValidSQLIdentifier(f.Name) {
			return "", fmt.Errorf("storage: invalid column identifier %q", f.Name)
		}
		if i > 0 {
			ddl += ", "
		}
		ddl += f.Name + " " + arrowTypeToSQL(f.Type)
	}
	ddl += ")"

	if _, err := s.data.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("storage: create table: %w", err)
	}

	if pol != "" {
		if _, err := s.policy.ExecContext(ctx, `INSERT INTO policy (table_name, json) VALUES (?, ?)`, tableName, pol); err != nil {
			return "", fmt.Errorf("storage: store policy: %w", err)
		}
	}

	return target, nil
}

// value is one column value coerced for storage or for coerced retrieval.
type value struct {
	i32  *int32
	f32  *float32
	str  *string
	blob []byte
}

func valueFromArrowColumn(col arrow.Array, row int) (value, error) {
	if col.IsNull(row) {
		return value{}, nil
	}
	switch c := col.(type) {
	case *array.Boolean:
		var v int32
		if c.Value(row) {
			v = 1
		}
		return value{i32: &v}, nil
	case *array.Int32:
		v := c.Value(row)
		return value{i32: &v}, nil
	case *array.Float32:
		v := c.Value(row)
		return value{f32: &v}, nil
	case *array.String:
		v := c.Value(row)
		return value{str: &v}, nil
	case *array.Binary:
		return value{blob: append([]byte(nil), c.Value(row)...)}, nil
	default:
		return value{}, fmt.Errorf("storage: unsupported column type %s", col.DataType())
	}
}

func (v value) sqlParam() interface{} {
	switch {
	case v.i32 != nil:
		return *v.i32
	case v.f32 != nil:
		return *v.f32
	case v.str != nil:
		return *v.str
	case v.blob != nil:
		return v.blob
	default:
		return nil
	}
}

// InsertBatch appends every row of batch into the table "{subject}_{target}".
func (s *Store) InsertBatch(ctx context.Context, subject, target string, batch arrow.Record) error {
	tableName := subject + "_" + target
	if !policy.IsValidSQLIdentifier(tableName) {
		return fmt.Errorf("storage: invalid table identifier %q", tableName)
	}

	schema := batch.Schema()
	columnNames := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		if !policy.IsValidSQLIdentifier(f.Name) {
			return fmt.Errorf("storage: invalid column identifier %q", f.Name)
		}
		columnNames[i] = f.Name
	}

	insertSQL := "INSERT INTO " + tableName + " ("
	placeholders := "("
	for i, name := range columnNames {
		if i > 0 {
			insertSQL += ", "
			placeholders += ", "
		}
		insertSQL += name
		placeholders += "?"
	}
	insertSQL += ") VALUES " + placeholders + ")"

	for row := 0; row < int(batch.NumRows()); row++ {
		params := make([]interface{}, batch.NumCols())
		for col := 0; col < int(batch.NumCols()); col++ {
			v, err := valueFromArrowColumn(batch.Column(col), row)
			if err != nil {
				return err
			}
			params[col] = v.sqlParam()
		}
		if _, err := s.data.ExecContext(ctx, insertSQL, params...); err != nil {
			return fmt.Errorf("storage: insert row %d: %w", row, err)
		}
	}
	return nil
}

// GetColumn reads a single column out of "{subject}_{target}", coercing the
// result to a single-column record batch. Values are attempted in order
// float32, then string, then raw bytes per row; once every row has been
// read, if any row produced a float32 the whole column is emitted as
// Float32 (with null for rows that didn't fit), else if any row produced a
// string the whole column is emitted as Utf8, else as Binary.
func (s *Store) GetColumn(ctx context.Context, subject, target, columnName string) (arrow.Record, error) {
	tableName := subject + "_" + target
	if !policy.IsValidSQLIdentifier(tableName) || !policy.IsValidSQLIdentifier(columnName) {
		return nil, fmt.Errorf("storage: invalid identifier")
	}

	rows, err := s.dataRO.QueryContext(ctx, "SELECT "+columnName+" FROM "+tableName)
	if err != nil {
		return nil, fmt.Errorf("storage: select column: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type cell struct {
		f32    *float32
		str    *string
		blob   []byte
		isNull bool
	}
	var cells []cell
	haveFloat, haveStr := false, false

	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("storage: scan column: %w", err)
		}
		c := cell{}
		switch v := raw.(type) {
		case nil:
			c.isNull = true
		case float64:
			f := float32(v)
			c.f32 = &f
			haveFloat = true
		case int64:
			f := float32(v)
			c.f32 = &f
			haveFloat = true
		case string:
			c.str = &v
			haveStr = true
		case []byte:
			// Try as UTF-8 text first, matching the source's string fallback
			// before the raw-bytes fallback.
			if utf8.Valid(v) {
				s := string(v)
				c.str = &s
				haveStr = true
			} else {
				c.blob = v
			}
		default:
			c.isNull = true
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate column: %w", err)
	}

	pool := memoryAllocator()
	var col arrow.Array
	var field arrow.Field
	switch {
	case haveFloat:
		b := array.NewFloat32Builder(pool)
		defer b.Release()
		for _, c := range cells {
			if c.isNull || c.f32 == nil {
				b.AppendNull()
				continue
			}
			b.Append(*c.f32)
		}
		col = b.NewArray()
		field = arrow.Field{Name: columnName, Type: arrow.PrimitiveTypes.Float32}
	case haveStr:
		b := array.NewStringBuilder(pool)
		defer b.Release()
		for _, c := range cells {
			if c.isNull || c.str == nil {
				b.AppendNull()
				continue
			}
			b.Append(*c.str)
		}
		col = b.NewArray()
		field = arrow.Field{Name: columnName, Type: arrow.BinaryTypes.String}
	default:
		b := array.NewBinaryBuilder(pool, arrow.BinaryTypes.Binary)
		defer b.Release()
		for _, c := range cells {
			if c.isNull || c.blob == nil {
				b.AppendNull()
				continue
			}
			b.Append(c.blob)
		}
		col = b.NewArray()
		field = arrow.Field{Name: columnName, Type: arrow.BinaryTypes.Binary}
	}
	defer col.Release()

	schema := arrow.NewSchema([]arrow.Field{field}, nil)
	return array.NewRecord(schema, []arrow.Array{col}, int64(len(cells))), nil
}

// GetPolicy returns the most recently inserted policy document for
// tableName, with every rule's ColumnName rewritten to columnName — the
// stored document describes the table once; callers always ask about one
// column at a time.
func (s *Store) GetPolicy(ctx context.Context, subject, target, columnName string) (string, error) {
	tableName := subject + "_" + target

	rows, err := s.polRO.QueryContext(ctx, `SELECT json FROM policy WHERE table_name = ?`, tableName)
	if err != nil {
		return "", fmt.Errorf("storage: query policy: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var last string
	found := false
	for rows.Next() {
		if err := rows.Scan(&last); err != nil {
			return "", fmt.Errorf("storage: scan policy: %w", err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("storage: no policy found for table %q", tableName)
	}

	doc, err := policy.FromJSON(last)
	if err != nil {
		return "", err
	}
	for id, rule := range doc.Rules {
		rule.ColumnName = columnName
		doc.Rules[id] = rule
	}
	return doc.ToJSON()
}
