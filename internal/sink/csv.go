package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

// SummaryFileName is the run summary written next to the trace files.
const SummaryFileName = "00_summary.txt"

// CSVSink writes one semicolon-separated file per client into a directory.
type CSVSink struct {
	dir string
	log logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewCSVSink prepares dir for a new run: existing contents are removed and
// the directory is recreated.
func NewCSVSink(ctx context.Context, dir string, log logging.Logger) (*CSVSink, error) {
	if log == nil {
		log = logging.Noop()
	}
	if strings.TrimSpace(dir) == "" || filepath.Clean(dir) == "/" {
		return nil, fmt.Errorf("refusing to reset output directory %q", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset output directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", dir, err)
	}
	log.Info(ctx, "output directory reset", logging.String("dir", dir))
	return &CSVSink{dir: dir, log: log}, nil
}

// Dir returns the output directory.
func (s *CSVSink) Dir() string { return s.dir }

// WriteTrace writes the header followed by one row per action.
func (s *CSVSink) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (n int, err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	path := filepath.Join(s.dir, meta.FileName())
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	buf := bufio.NewWriter(f)
	if _, err := buf.WriteString(model.Header + "\n"); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	w := csv.NewWriter(buf)
	w.Comma = ';'
	for a := range actions {
		if err := w.Write(a.Record()); err != nil {
			return n, fmt.Errorf("write %s: %w", path, err)
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return n, fmt.Errorf("flush %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		return n, fmt.Errorf("flush %s: %w", path, err)
	}
	s.log.Debug(ctx, "trace file written",
		logging.String("file", meta.FileName()),
		logging.Int("actions", n),
	)
	return n, nil
}

// WriteSummary writes the run summary into SummaryFileName.
func (s *CSVSink) WriteSummary(_ context.Context, _ string, summary []byte) error {
	path := filepath.Join(s.dir, SummaryFileName)
	if err := os.WriteFile(path, summary, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Close marks the sink closed. Files are closed after every trace.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
