package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// defaultCSVPolicy is the policy document attached to every CSV target: no
// per-column rules, and a table verifier requiring a mean of at least 100.
const defaultCSVPolicy = `{"rules":{},"func_policy":{},"table_verifiers":{"mean_minimum_100":{"verifier":"mean_minimum_100"}},"default_table_verifier":"mean_minimum_100"}`

// CSVProvider serves one CSV file per configured target. The file's header
// row names the columns; every column is typed Float32 unless any row in
// that column fails to parse as a float, in which case the whole column is
// served as Utf8.
type CSVProvider struct {
	files map[string]string // target -> file path
}

// NewCSVProvider returns a provider serving files keyed by target name.
func NewCSVProvider(files map[string]string) *CSVProvider {
	return &CSVProvider{files: files}
}

func (p *CSVProvider) readColumns(target string) (headers []string, columns [][]string, err error) {
	path, ok := p.files[target]
	if !ok {
		return nil, nil, fmt.Errorf("dataset: unknown csv target %q", target)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("dataset: %q is empty", path)
	}
	headers = records[0]
	columns = make([][]string, len(headers))
	for _, row := range records[1:] {
		for i := range headers {
			if i < len(row) {
				columns[i] = append(columns[i], row[i])
			} else {
				columns[i] = append(columns[i], "")
			}
		}
	}
	return headers, columns, nil
}

// GetData implements Provider.
func (p *CSVProvider) GetData(ctx context.Context, target, columnName string) ([]arrow.Record, error) {
	headers, columns, err := p.readColumns(target)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, h := range headers {
		if h == columnName {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("dataset: unknown column %q in target %q", columnName, target)
	}

	values := columns[idx]
	allNumeric := true
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 32); err != nil {
			allNumeric = false
			break
		}
	}

	pool := memory.NewGoAllocator()
	var col arrow.Array
	var field arrow.Field
	if allNumeric {
		b := array.NewFloat32Builder(pool)
		defer b.Release()
		for _, v := range values {
			f, _ := strconv.ParseFloat(v, 32)
			b.Append(float32(f))
		}
		col = b.NewArray()
		field = arrow.Field{Name: columnName, Type: arrow.PrimitiveTypes.Float32}
	} else {
		b := array.NewStringBuilder(pool)
		defer b.Release()
		b.AppendValues(values, nil)
		col = b.NewArray()
		field = arrow.Field{Name: columnName, Type: arrow.BinaryTypes.String}
	}
	defer col.Release()

	schema := arrow.NewSchema([]arrow.Field{field}, nil)
	rec := array.NewRecord(schema, []arrow.Array{col}, int64(len(values)))
	return []arrow.Record{rec}, nil
}

// GetPolicy implements Provider.
func (p *CSVProvider) GetPolicy(ctx context.Context, target, columnName string) (string, error) {
	if _, ok := p.files[target]; !ok {
		return "", fmt.Errorf("dataset: unknown csv target %q", target)
	}
	return defaultCSVPolicy, nil
}
