package csvimport

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// DefaultBatchSize is the raw-row window handed to one upsert statement.
const DefaultBatchSize = 1000

// RequiredColumns must all appear in the CSV header. Header names are matched
// after trimming and lowercasing.
var RequiredColumns = []string{"name", "sku", "description"}

// ValidationError marks a CSV problem only the uploader can fix. The importer
// treats it as terminal and stores the message on the job verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Record is one normalized CSV row ready for upserting.
type Record struct {
	Name          string
	SKU           string
	SKUNormalized string
	Description   *string
	Active        bool
}

// Batch is one deduplicated window of rows. Rows is keyed by normalized SKU;
// within a window a later row overwrites an earlier one with the same key.
// RawCount is the number of raw rows consumed for the window and drives the
// processed-record accounting, so it can exceed len(Rows).
type Batch struct {
	Rows     map[string]Record
	RawCount int
}

// CountRecords validates the header and returns the raw record count. Row
// contents are not checked here; ReadBatches owns that.
func CountRecords(path string) (int, error) {
	file, reader, _, err := openCSV(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	for {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return 0, err
		}
		count++
	}
}

// ReadBatches streams the file as deduplicated windows of batchSize raw rows
// and hands each window to fn. An error from fn aborts the read; batches
// handed out before the error stay handed out.
func ReadBatches(path string, batchSize int, fn func(Batch) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	file, reader, cols, err := openCSV(path)
	if err != nil {
		return err
	}
	defer file.Close()

	rows := make(map[string]Record, batchSize)
	raw := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		row, err := parseRow(record, cols)
		if err != nil {
			return err
		}
		rows[row.SKUNormalized] = row
		raw++

		if raw >= batchSize {
			if err := fn(Batch{Rows: rows, RawCount: raw}); err != nil {
				return err
			}
			rows = make(map[string]Record, batchSize)
			raw = 0
		}
	}

	if raw > 0 {
		return fn(Batch{Rows: rows, RawCount: raw})
	}
	return nil
}

// columnIndex maps the required columns to their header positions.
type columnIndex struct {
	name        int
	sku         int
	description int
}

func openCSV(path string) (*os.File, *csv.Reader, columnIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, columnIndex{}, &ValidationError{Message: "Uploaded CSV file no longer exists on the server."}
		}
		return nil, nil, columnIndex{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, columnIndex{}, err
	}

	reader := csv.NewReader(file)
	// Tolerate ragged rows and sloppy quoting; row validation decides what is
	// acceptable, not the parser.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		file.Close()
		return nil, nil, columnIndex{}, &ValidationError{Message: "CSV file is missing a header row."}
	}
	if err != nil {
		file.Close()
		return nil, nil, columnIndex{}, err
	}

	indexes := make(map[string]int, len(header))
	for i, raw := range header {
		normalized := strings.ToLower(strings.TrimSpace(raw))
		if normalized != "" {
			indexes[normalized] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := indexes[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		file.Close()
		return nil, nil, columnIndex{}, &ValidationError{Message: "CSV missing required columns: " + strings.Join(missing, ", ")}
	}

	cols := columnIndex{
		name:        indexes["name"],
		sku:         indexes["sku"],
		description: indexes["description"],
	}
	return file, reader, cols, nil
}

func parseRow(record []string, cols columnIndex) (Record, error) {
	name := strings.TrimSpace(field(record, cols.name))
	sku := strings.TrimSpace(field(record, cols.sku))
	if name == "" || sku == "" {
		return Record{}, &ValidationError{Message: "Each row must include non-empty 'name' and 'sku' values."}
	}

	row := Record{
		Name:          name,
		SKU:           sku,
		SKUNormalized: models.NormalizeSKU(sku),
		Active:        true,
	}
	if description := strings.TrimSpace(field(record, cols.description)); description != "" {
		row.Description = &description
	}
	return row, nil
}

func field(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return record[index]
}
