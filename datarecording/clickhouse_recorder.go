package datarecording

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/tebeka/atexit"
)

// clickHouseRecorder writes tables into a ClickHouse server with batched
// native-protocol inserts.
type clickHouseRecorder struct {
	conn      clickhouse.Conn
	mu        sync.Mutex
	batchSize int

	tables     map[string]*table
	entryCount int
}

// NewClickHouseRecorder connects to the server named by dsn, e.g.
// "clickhouse://localhost:9000/rvtlb?username=default".
func NewClickHouseRecorder(dsn string, batchSize int) (DataRecorder, error) {
	if batchSize <= 0 {
		batchSize = 100000
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}

	opts.DialTimeout = 30 * time.Second
	opts.ConnOpenStrategy = clickhouse.ConnOpenInOrder

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	r := &clickHouseRecorder{
		conn:      conn,
		batchSize: batchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { r.Flush() })

	return r, nil
}

func clickHouseColumnType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "Int64"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "UInt64"
	case reflect.Float32, reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

// clickHouseCreateSQL returns the DDL of a MergeTree table whose columns are
// the fields of sample.
func clickHouseCreateSQL(tableName string, sample any) (string, error) {
	if err := checkStructFields(sample); err != nil {
		return "", err
	}

	t := reflect.TypeOf(sample)
	columns := make([]string, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		columns = append(columns,
			f.Name+" "+clickHouseColumnType(f.Type.Kind()))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\nORDER BY tuple()",
		tableName, strings.Join(columns, ",\n\t")), nil
}

// clickHouseRow converts the fields of entry into the Go types the columns
// created by clickHouseCreateSQL accept.
func clickHouseRow(entry any) []any {
	v := reflect.ValueOf(entry)
	row := make([]any, 0, v.NumField())

	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)

		switch clickHouseColumnType(f.Kind()) {
		case "Bool":
			row = append(row, f.Bool())
		case "Int64":
			row = append(row, f.Int())
		case "UInt64":
			row = append(row, f.Uint())
		case "Float64":
			row = append(row, f.Float())
		default:
			row = append(row, f.String())
		}
	}

	return row
}

func (r *clickHouseRecorder) CreateTable(tableName string, sampleEntry any) {
	createSQL, err := clickHouseCreateSQL(tableName, sampleEntry)
	if err != nil {
		panic(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.conn.Exec(context.Background(), createSQL)
	if err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}

	r.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
}

func (r *clickHouseRecorder) InsertData(tableName string, entry any) {
	r.mu.Lock()

	table, exists := r.tables[tableName]
	if !exists {
		r.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	table.entries = append(table.entries, entry)
	r.entryCount++
	full := r.entryCount >= r.batchSize

	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

func (r *clickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tables := make([]string, 0, len(r.tables))
	for name := range r.tables {
		tables = append(tables, name)
	}

	sort.Strings(tables)

	return tables
}

func (r *clickHouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entryCount == 0 {
		return
	}

	ctx := context.Background()

	for tableName, table := range r.tables {
		if len(table.entries) == 0 {
			continue
		}

		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
		if err != nil {
			panic(fmt.Errorf("failed to prepare batch for %s: %w",
				tableName, err))
		}

		for _, entry := range table.entries {
			if err := batch.Append(clickHouseRow(entry)...); err != nil {
				panic(fmt.Errorf("failed to append to %s: %w", tableName, err))
			}
		}

		if err := batch.Send(); err != nil {
			panic(fmt.Errorf("failed to send batch: %w", err))
		}

		table.entries = nil
	}

	r.entryCount = 0
}

func (r *clickHouseRecorder) Close() error {
	r.Flush()

	err := r.conn.Close()
	if err != nil {
		return fmt.Errorf("failed to close ClickHouse connection: %w", err)
	}

	return nil
}
