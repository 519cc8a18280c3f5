package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// FileName is the visit log file inside the output directory.
const FileName = "directory_traverse_log.csv"

// Header is the first row of the visit log.
var Header = []string{"path", "node_name", "url", "visited_at", "response_latency_seconds"}

// timestampFormats are accepted when reading visited_at back.
// Rows written by this package always use model.TimestampLayout.
var timestampFormats = []string{
	model.TimestampLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Store is the append-only visit log. Every Append reaches stable storage
// before it returns, so the last row is always the most recent durable visit.
type Store struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	w       *csv.Writer
	dropped int64
}

// Open opens or creates the visit log in dir.
// A new or empty file gets the header row. A final row cut short by an
// interrupted write is dropped, and the log is made to end with a newline
// so the next Append starts a row of its own.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint log: %w", err)
	}

	s := &Store{
		path: path,
		file: f,
		w:    csv.NewWriter(f),
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat checkpoint log: %w", err)
	}
	if info.Size() == 0 {
		if err := s.writeRow(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
		return s, nil
	}
	if err := s.repair(info.Size()); err != nil {
		_ = f.Close()
		return nil, err
	}

	return s, nil
}

// repair cuts a torn final row off a log of the given size.
// A log that does not decode for another reason is left as it is;
// reading it reports the problem and Clear still works.
func (s *Store) repair(size int64) error {
	res, err := scan(s.file, size)
	if err != nil {
		return nil //nolint:nilerr // surfaced by ReadFile
	}

	end := size
	if res.torn {
		end = res.end
		if err := s.file.Truncate(end); err != nil {
			return fmt.Errorf("failed to drop partial checkpoint row: %w", err)
		}
		s.dropped = size - end
	}
	if end == 0 {
		return s.writeRow(Header)
	}

	last := make([]byte, 1)
	if _, err := s.file.ReadAt(last, end-1); err != nil {
		return fmt.Errorf("failed to read checkpoint log: %w", err)
	}
	if last[0] != '\n' {
		if _, err := s.file.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("failed to terminate checkpoint row: %w", err)
		}
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint log: %w", err)
	}
	return nil
}

// DroppedBytes returns how many bytes of a torn final row Open removed.
func (s *Store) DroppedBytes() int64 {
	return s.dropped
}

// Path returns the visit log location.
func (s *Store) Path() string {
	return s.path
}

// Append writes one visit and syncs it to disk.
func (s *Store) Append(rec model.VisitRecord) error {
	if err := rec.Path.Validate(); err != nil {
		return fmt.Errorf("failed to append visit %q: %w", rec.NodeName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	return s.writeRow(encode(rec))
}

// writeRow writes, flushes and fsyncs one row. Callers hold mu or own s exclusively.
func (s *Store) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write checkpoint row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush checkpoint row: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint log: %w", err)
	}
	return nil
}

// AllRecords reads every visit in file order.
func (s *Store) AllRecords() ([]model.VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ReadFile(s.path)
}

// LastRecord returns the most recent visit. The boolean is false when the
// log has no rows besides the header.
func (s *Store) LastRecord() (model.VisitRecord, bool, error) {
	records, err := s.AllRecords()
	if err != nil {
		return model.VisitRecord{}, false, err
	}
	if len(records) == 0 {
		return model.VisitRecord{}, false, nil
	}
	return records[len(records)-1], true, nil
}

// Clear truncates the log back to the header row.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate checkpoint log: %w", err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind checkpoint log: %w", err)
	}
	return s.writeRow(Header)
}

// Close closes the underlying file. Further writes return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadFile decodes a visit log without opening it for writing.
// A missing file reads as an empty log.
func ReadFile(path string) ([]model.VisitRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path is the checkpoint location
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint log: %w", err)
	}
	res, err := scan(f, info.Size())
	if err != nil {
		return nil, err
	}
	return res.records, nil
}

// scanResult is what one pass over a visit log found.
type scanResult struct {
	records []model.VisitRecord
	// end is the offset just past the last intact row, header included.
	end int64
	// torn is set when the final row was cut short and left out.
	torn bool
}

// scan decodes size bytes of a visit log. Rows always end with a newline
// once written, so a row that fails to decode is treated as torn only when
// it is the last one and the log does not end with a newline. Any other
// bad row is an error.
func scan(ra io.ReaderAt, size int64) (scanResult, error) {
	var res scanResult
	if size == 0 {
		return res, nil
	}

	last := make([]byte, 1)
	if _, err := ra.ReadAt(last, size-1); err != nil {
		return res, fmt.Errorf("failed to read checkpoint log: %w", err)
	}
	unterminated := last[0] != '\n'

	r := csv.NewReader(io.NewSectionReader(ra, 0, size))
	r.FieldsPerRecord = len(Header)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil || !slices.Equal(header, Header) {
		if unterminated && isHeaderPrefix(header) && atEOF(r) {
			res.torn = true
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrUnexpectedHeader, err)
		}
		return res, fmt.Errorf("%w: %v", ErrUnexpectedHeader, header)
	}
	res.end = r.InputOffset()

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		var rec model.VisitRecord
		if err == nil {
			rec, err = decode(row)
		}
		if err != nil {
			if unterminated && atEOF(r) {
				res.torn = true
				return res, nil
			}
			return res, fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, line, err)
		}
		res.records = append(res.records, rec)
		res.end = r.InputOffset()
	}
}

// isHeaderPrefix reports whether row is the start of the header row.
func isHeaderPrefix(row []string) bool {
	return strings.HasPrefix(strings.Join(Header, ","), strings.Join(row, ","))
}

// atEOF reports whether r has nothing left to read.
func atEOF(r *csv.Reader) bool {
	_, err := r.Read()
	return errors.Is(err, io.EOF)
}

func encode(rec model.VisitRecord) []string {
	return []string{
		rec.Path.String(),
		rec.NodeName,
		rec.URL,
		rec.VisitedAt.Format(model.TimestampLayout),
		strconv.FormatFloat(rec.ResponseLatency.Seconds(), 'f', 2, 64),
	}
}

func decode(row []string) (model.VisitRecord, error) {
	path, err := treepath.Parse(row[0])
	if err != nil {
		return model.VisitRecord{}, err
	}

	visitedAt, err := parseTimestamp(row[3])
	if err != nil {
		return model.VisitRecord{}, err
	}

	var latency time.Duration
	if row[4] != "" {
		secs, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return model.VisitRecord{}, fmt.Errorf("invalid latency %q: %w", row[4], err)
		}
		latency = time.Duration(secs * float64(time.Second))
	}

	return model.VisitRecord{
		Path:            path,
		Level:           path.Level(),
		NodeName:        row[1],
		URL:             row[2],
		VisitedAt:       visitedAt,
		ResponseLatency: latency,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
