package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const DefaultBatchSize = 1000

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// BatchSink persists one finished batch. The gorm-backed sink is the
// production implementation; tests supply an in-memory one.
type BatchSink interface {
	Persist(ctx context.Context, batch *models.UploadBatch) error
}

// GormSink writes batches through the models layer.
type GormSink struct{}

func (GormSink) Persist(ctx context.Context, batch *models.UploadBatch) error {
	return models.CreateUploadBatch(ctx, batch)
}

// MissingHeadersError aborts a parse before any batch is persisted.
type MissingHeadersError struct {
	Missing []string
}

func (e *MissingHeadersError) Error() string {
	return fmt.Sprintf("required headers missing: %s", strings.Join(e.Missing, ", "))
}

// ParseSummary is the caller-facing outcome of one parse.
type ParseSummary struct {
	RowsTotal         int                `json:"rows_total"`
	RowsValid         int                `json:"rows_valid"`
	RowsInvalid       int                `json:"rows_invalid"`
	BatchCount        int                `json:"batch_count"`
	SampleRows        []models.BatchRow  `json:"sample_rows"`
	SampleErrors      []models.RowError  `json:"sample_errors"`
	ReadyForTransform bool               `json:"ready_for_transform"`
}

// Parser streams a delimited file (or xlsx sheet) against one record-type
// schema, sanitizing and validating rows and flushing fixed-size batches
// through the sink. A Parser instance is reusable across uploads.
type Parser struct {
	schema    *Schema
	batchSize int
	sink      BatchSink
}

func NewParser(schema *Schema, batchSize int, sink BatchSink) *Parser {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Parser{
		schema:    schema,
		batchSize: batchSize,
		sink:      sink,
	}
}

// Parse consumes the raw bytes of one upload. Header errors abort with
// zero persisted batches; row errors are bucketed and never stop the
// stream; a sink error stops the stream and fails the parse.
func (p *Parser) Parse(ctx context.Context, businessId string, uploadId int, reader io.Reader, format Format) (*ParseSummary, error) {
	next, err := rowSource(reader, format)
	if err != nil {
		return nil, err
	}

	headers, err := p.readHeader(next)
	if err != nil {
		return nil, err
	}

	summary := &ParseSummary{}
	batcher := newBatcher(ctx, businessId, uploadId, p.batchSize, p.sink)

	rowNum := 0
	for {
		record, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum+1, err)
		}
		if isBlankRecord(record) {
			continue
		}
		rowNum++
		summary.RowsTotal++

		data, fieldErrs := p.sanitizeRow(headers, record)
		if len(fieldErrs) > 0 {
			summary.RowsInvalid++
			rowErr := models.RowError{Row: rowNum, Errors: fieldErrs}
			if len(summary.SampleErrors) < 20 {
				summary.SampleErrors = append(summary.SampleErrors, rowErr)
			}
			if err := batcher.addInvalid(rowErr); err != nil {
				return nil, err
			}
			continue
		}

		summary.RowsValid++
		row := models.BatchRow{Row: rowNum, Data: data}
		if len(summary.SampleRows) < 5 {
			summary.SampleRows = append(summary.SampleRows, row)
		}
		if err := batcher.addValid(row); err != nil {
			return nil, err
		}
	}

	if err := batcher.flush(); err != nil {
		return nil, err
	}
	summary.BatchCount = batcher.batchIndex
	summary.ReadyForTransform = summary.RowsValid > 0

	config.GetLogger().WithFields(logrus.Fields{
		"tenant_id":    businessId,
		"upload_id":    uploadId,
		"record_type":  p.schema.RecordType,
		"rows_total":   summary.RowsTotal,
		"rows_valid":   summary.RowsValid,
		"rows_invalid": summary.RowsInvalid,
		"batches":      summary.BatchCount,
	}).Info("[ingest.parse]")

	return summary, nil
}

// readHeader canonicalizes the first row and verifies required columns.
func (p *Parser) readHeader(next func() ([]string, error)) ([]string, error) {
	record, err := next()
	if err == io.EOF {
		return nil, &MissingHeadersError{Missing: requiredNames(p.schema)}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headers := make([]string, len(record))
	for i, raw := range record {
		headers[i] = p.schema.CanonicalHeader(raw)
	}
	if missing := p.schema.MissingRequired(headers); len(missing) > 0 {
		return nil, &MissingHeadersError{Missing: missing}
	}
	return headers, nil
}

func requiredNames(s *Schema) []string {
	var names []string
	for _, f := range s.Fields() {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// sanitizeRow trims, coerces and validates one record against the schema.
// Unknown columns pass through as trimmed strings; empty cells become null.
func (p *Parser) sanitizeRow(headers []string, record []string) (map[string]any, []models.FieldError) {
	data := make(map[string]any, len(headers))
	var fieldErrs []models.FieldError
	erred := make(map[string]bool)

	for i, name := range headers {
		var raw string
		if i < len(record) {
			raw = strings.TrimSpace(record[i])
		}
		if raw == "" {
			data[name] = nil
			continue
		}

		rule, known := p.schema.Rule(name)
		if !known {
			data[name] = raw
			continue
		}

		value, err := coerceField(rule, raw)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: name, Message: err.Error()})
			erred[name] = true
			continue
		}
		data[name] = value
	}

	// One error per field: a failed coercion already reported it.
	for _, rule := range p.schema.Fields() {
		if !rule.Required || erred[rule.Name] {
			continue
		}
		if v, ok := data[rule.Name]; !ok || v == nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: rule.Name, Message: "is required"})
		}
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return data, nil
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// ParseDate parses a date string against the layouts the parser accepts.
func ParseDate(raw string) (time.Time, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognized date", raw)
}

func coerceField(rule FieldRule, raw string) (any, error) {
	switch rule.Kind {
	case KindDecimal:
		d, err := utils.ParseDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		if rule.Positive && d.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("must be greater than zero")
		}
		if rule.NonNegative && d.IsNegative() {
			return nil, fmt.Errorf("must not be negative")
		}
		// Kept as the decimal's canonical string so JSON round-trips
		// never lose precision.
		return d.String(), nil
	case KindInt:
		n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		if rule.Positive && n <= 0 {
			return nil, fmt.Errorf("must be greater than zero")
		}
		if rule.NonNegative && n < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		return n, nil
	case KindDate:
		for _, layout := range dateFormats {
			if _, err := time.Parse(layout, raw); err == nil {
				return raw, nil
			}
		}
		return nil, fmt.Errorf("is not a recognized date")
	default:
		if rule.MaxLen > 0 && len(raw) > rule.MaxLen {
			return nil, fmt.Errorf("must be at most %d characters", rule.MaxLen)
		}
		return raw, nil
	}
}

// batcher accumulates rows and errors and flushes a persisted batch every
// time the combined count reaches the threshold. Batch indexes increase
// monotonically from zero within one parse.
type batcher struct {
	ctx        context.Context
	businessId string
	uploadId   int
	limit      int
	sink       BatchSink

	rows       []models.BatchRow
	errors     []models.RowError
	batchIndex int
}

func newBatcher(ctx context.Context, businessId string, uploadId, limit int, sink BatchSink) *batcher {
	return &batcher{
		ctx:        ctx,
		businessId: businessId,
		uploadId:   uploadId,
		limit:      limit,
		sink:       sink,
	}
}

func (b *batcher) addValid(row models.BatchRow) error {
	b.rows = append(b.rows, row)
	return b.flushIfFull()
}

func (b *batcher) addInvalid(rowErr models.RowError) error {
	b.errors = append(b.errors, rowErr)
	return b.flushIfFull()
}

func (b *batcher) flushIfFull() error {
	if len(b.rows)+len(b.errors) >= b.limit {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.rows) == 0 && len(b.errors) == 0 {
		return nil
	}
	batch := &models.UploadBatch{
		UploadId:    b.uploadId,
		BusinessId:  b.businessId,
		BatchIndex:  b.batchIndex,
		RowsTotal:   len(b.rows) + len(b.errors),
		RowsValid:   len(b.rows),
		RowsInvalid: len(b.errors),
		RowsJSON:    models.EncodeBatchRows(b.rows),
		ErrorsJSON:  models.EncodeRowErrors(b.errors),
	}
	if err := b.sink.Persist(b.ctx, batch); err != nil {
		return fmt.Errorf("persist batch %d: %w", b.batchIndex, err)
	}
	b.batchIndex++
	b.rows = nil
	b.errors = nil
	return nil
}

// rowSource returns a pull function over the input rows; csv streams,
// xlsx is materialized by excelize up front.
func rowSource(reader io.Reader, format Format) (func() ([]string, error), error) {
	if format == FormatXLSX {
		f, err := excelize.OpenReader(reader)
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		sheet := f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		i := 0
		return func() ([]string, error) {
			if i >= len(rows) {
				return nil, io.EOF
			}
			row := rows[i]
			i++
			return row, nil
		}, nil
	}

	buffered := bufio.NewReader(reader)
	csvReader := csv.NewReader(buffered)
	csvReader.Comma = detectDelimiter(buffered)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	return csvReader.Read, nil
}

// detectDelimiter sniffs the first line for the densest of comma,
// semicolon and tab.
func detectDelimiter(buffered *bufio.Reader) rune {
	peeked, _ := buffered.Peek(4096)
	line := string(peeked)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	best := ','
	bestCount := strings.Count(line, ",")
	if c := strings.Count(line, ";"); c > bestCount {
		best, bestCount = ';', c
	}
	if c := strings.Count(line, "\t"); c > bestCount {
		best = '\t'
	}
	return best
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
