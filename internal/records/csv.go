package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reader decodes positional snapshot rows.
type Reader struct {
	r    *csv.Reader
	loc  *time.Location
	line int
}

func NewReader(r io.Reader, loc *time.Location) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields
	cr.ReuseRecord = true
	return &Reader{r: cr, loc: loc}
}

// Read returns the next record or io.EOF.
func (r *Reader) Read() (Record, error) {
	fields, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read csv: %w", err)
	}
	r.line++
	rec, err := decodeFields(fields, r.loc)
	if err != nil {
		return Record{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	return rec, nil
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func decodeFields(f []string, loc *time.Location) (Record, error) {
	ts, err := ParseTimestamp(f[0], loc)
	if err != nil {
		return Record{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(f[2]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("lon %q: %w", f[2], err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(f[3]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("lat %q: %w", f[3], err)
	}
	ints := make([]int, 4)
	names := [4]string{"mechanical", "ebike", "capacity", "numdocksavailable"}
	for i := range ints {
		n, err := strconv.Atoi(strings.TrimSpace(f[4+i]))
		if err != nil {
			return Record{}, fmt.Errorf("%s %q: %w", names[i], f[4+i], err)
		}
		ints[i] = n
	}
	return Record{
		Timestamp:         ts,
		StationName:       f[1],
		Lon:               lon,
		Lat:               lat,
		Mechanical:        ints[0],
		EBike:             ints[1],
		Capacity:          ints[2],
		NumDocksAvailable: ints[3],
	}, nil
}

// ReadFile loads a whole day file. A missing file returns an error matching
// os.ErrNotExist.
func ReadFile(path string, loc *time.Location) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	recs, err := NewReader(f, loc).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Writer encodes records in the positional format read by Reader.
type Writer struct {
	w *csv.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

func (w *Writer) Write(r Record) error {
	return w.w.Write([]string{
		r.Timestamp.Format(time.RFC3339),
		r.StationName,
		strconv.FormatFloat(r.Lon, 'f', -1, 64),
		strconv.FormatFloat(r.Lat, 'f', -1, 64),
		strconv.Itoa(r.Mechanical),
		strconv.Itoa(r.EBike),
		strconv.Itoa(r.Capacity),
		strconv.Itoa(r.NumDocksAvailable),
	})
}

// Flush writes buffered rows and reports any write error.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// AppendFile appends records to path, creating it if needed.
func AppendFile(path string, recs []Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := NewWriter(f)
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
