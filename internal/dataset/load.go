package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Options controls how a dataset is read.
type Options struct {
	// MaxRows limits rows loaded; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed among ',', ';', '\t'.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// XLSX sheet selection. SheetIndex is 1-based and used when SheetName is empty.
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns reasonable defaults for loading a dataset.
func DefaultOptions() Options {
	return Options{MaxRows: 100000, SheetIndex: 1}
}

// ErrUnsupported indicates a file extension no loader handles.
var ErrUnsupported = errors.New("unsupported dataset format")

// Load picks a loader by file extension.
func Load(path string, opt Options) (*Frame, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return LoadXLSX(path, opt)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".txt"):
		return LoadCSV(path, opt)
	default:
		return nil, fmt.Errorf("%w: %s (use .csv, .tsv or .xlsx)", ErrUnsupported, filepath.Base(path))
	}
}

// Read parses an in-memory upload, picking the format from name's extension.
func Read(data []byte, name string, opt Options) (*Frame, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return ReadXLSX(data, filepath.Base(name), opt)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".txt"):
		if opt.Delimiter == 0 && strings.HasSuffix(lower, ".tsv") {
			opt.Delimiter = '\t'
		}
		return ReadCSV(bytes.NewReader(data), filepath.Base(name), opt)
	default:
		return nil, fmt.Errorf("%w: %s (use .csv, .tsv or .xlsx)", ErrUnsupported, filepath.Base(name))
	}
}

// LoadCSV reads a delimited text file from disk.
func LoadCSV(path string, opt Options) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 && strings.HasSuffix(strings.ToLower(path), ".tsv") {
		opt.Delimiter = '\t'
	}
	return ReadCSV(f, filepath.Base(path), opt)
}

// ReadCSV reads delimited text from r. The first record is the header.
func ReadCSV(r io.Reader, name string, opt Options) (*Frame, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		peek, _ := br.Peek(4096)
		delim = sniffDelimiter(peek)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return newBuilder(name, nil, opt).build(), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	b := newBuilder(name, header, opt)
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", b.total+1, err)
		}
		b.add(rec)
	}
	return b.build(), nil
}

// FromRecords builds a frame from an in-memory header and rows.
func FromRecords(name string, header []string, rows [][]string, opt Options) *Frame {
	b := newBuilder(name, header, opt)
	for _, r := range rows {
		b.add(r)
	}
	return b.build()
}

// sniffDelimiter picks the candidate that occurs most often on the first line.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(head, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

type builder struct {
	name   string
	header []string
	rows   [][]string
	total  int
	opt    Options
	notes  []string
}

func newBuilder(name string, header []string, opt Options) *builder {
	b := &builder{name: name, opt: opt}
	b.header, b.notes = normalizeHeader(header)
	return b
}

func (b *builder) add(rec []string) {
	b.total++
	if b.opt.MaxRows > 0 && len(b.rows) >= b.opt.MaxRows {
		return
	}
	row := make([]string, len(b.header))
	for i := range row {
		if i < len(rec) {
			row[i] = strings.TrimSpace(rec[i])
		}
	}
	b.rows = append(b.rows, row)
}

func (b *builder) build() *Frame {
	f := &Frame{
		Name:      b.name,
		TotalRows: b.total,
		Notes:     b.notes,
		index:     make(map[string]int, len(b.header)),
		rows:      len(b.rows),
	}
	if len(b.rows) < b.total {
		f.Notes = append(f.Notes, fmt.Sprintf("processed only %d/%d rows due to MaxRows", len(b.rows), b.total))
	}
	for j, name := range b.header {
		raw := make([]string, len(b.rows))
		for i, row := range b.rows {
			raw[i] = row[j]
		}
		f.cols = append(f.cols, inferColumn(name, raw, b.opt))
		f.index[name] = j
	}
	return f
}

// normalizeHeader fills blank names and de-duplicates repeats the way pandas
// does ("Unnamed: 3", "price.1").
func normalizeHeader(header []string) ([]string, []string) {
	var notes []string
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
			notes = append(notes, fmt.Sprintf("column %d has no header; named %q", i, name))
		}
		if n, dup := seen[name]; dup {
			renamed := fmt.Sprintf("%s.%d", name, n)
			seen[name] = n + 1
			notes = append(notes, fmt.Sprintf("duplicate column %q renamed to %q", name, renamed))
			name = renamed
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out, notes
}

// inferColumn decides the column kind from its non-missing cells.
// A kind wins only when every non-missing cell parses as it.
func inferColumn(name string, raw []string, opt Options) *Column {
	c := &Column{name: name, raw: raw, kind: KindObject}
	var nonNil, boolCnt, numCnt, intCnt, dtCnt int
	nums := make([]float64, len(raw))
	times := make([]float64, len(raw))
	for i, v := range raw {
		nums[i] = math.NaN()
		times[i] = math.NaN()
		if v == "" {
			continue
		}
		nonNil++
		if _, ok := parseBoolMaybe(v); ok {
			boolCnt++
			continue
		}
		if x, ok := parseNumeric(v, opt); ok {
			numCnt++
			nums[i] = x
			if isIntegral(x) {
				intCnt++
			}
			continue
		}
		if t, ok := parseTimeMaybe(v); ok {
			dtCnt++
			times[i] = float64(t.Unix())
		}
	}
	switch {
	case nonNil == 0:
		c.kind = KindObject
	case boolCnt == nonNil:
		c.kind = KindBool
		for i, v := range raw {
			if bv, ok := parseBoolMaybe(v); ok {
				nums[i] = 0
				if bv {
					nums[i] = 1
				}
			}
		}
		c.nums = nums
	case numCnt == nonNil:
		c.kind = KindFloat
		// pandas promotes integer columns with holes to float64
		if intCnt == numCnt && nonNil == len(raw) {
			c.kind = KindInt
		}
		c.nums = nums
	case dtCnt == nonNil:
		c.kind = KindDatetime
		c.nums = times
	}
	return c
}
