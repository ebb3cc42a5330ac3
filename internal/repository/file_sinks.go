package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"EventHorizon/internal/domain/models"
)

// TitanFileSink appends one line per titan-tier verdict. The file is opened
// in append mode so repeated mining sessions accumulate.
type TitanFileSink struct {
	w     io.Writer
	f     *os.File
	count int
}

func NewTitanFileSink(path string) (*TitanFileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open titan file: %w", err)
	}
	return &TitanFileSink{w: f, f: f}, nil
}

// NewTitanWriterSink writes titan lines to w.
func NewTitanWriterSink(w io.Writer) *TitanFileSink {
	return &TitanFileSink{w: w}
}

func (s *TitanFileSink) Name() string { return "titan_file" }

// FormatTitan renders the titan line for v.
func FormatTitan(v models.Verdict) string {
	return fmt.Sprintf("A=%s, B=%s, BSD=%.4f, Glide=%d", v.A, v.B, v.Signals.Theta, v.Signals.Tau)
}

func (s *TitanFileSink) Write(_ context.Context, r models.Result) error {
	if r.Verdict == nil || r.Verdict.Tier != models.TierTitan {
		return nil
	}
	if _, err := io.WriteString(s.w, FormatTitan(*r.Verdict)+"\n"); err != nil {
		return err
	}
	s.count++
	if s.f != nil {
		return s.f.Sync()
	}
	return nil
}

// Count is the number of titans written so far.
func (s *TitanFileSink) Count() int { return s.count }

func (s *TitanFileSink) Close() error {
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

var reportHeader = []string{"a", "b", "category", "tier", "theta", "tau", "sample_size", "divergent", "error", "duration_ms"}

// CSVReportSink writes every result, failures included, as one CSV row.
type CSVReportSink struct {
	cw *csv.Writer
	c  io.Closer
}

func NewCSVReportSink(path string) (*CSVReportSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s, err := NewCSVWriterSink(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.c = f
	return s, nil
}

// NewCSVWriterSink writes the header to w immediately.
func NewCSVWriterSink(w io.Writer) (*CSVReportSink, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return nil, err
	}
	return &CSVReportSink{cw: cw}, nil
}

func (s *CSVReportSink) Name() string { return "csv" }

func (s *CSVReportSink) Write(_ context.Context, r models.Result) error {
	row := []string{r.A, r.B, "", "", "", "", "", "", "", strconv.FormatInt(r.Duration.Milliseconds(), 10)}
	if v := r.Verdict; v != nil {
		row[2] = string(v.Category)
		row[3] = string(v.Tier)
		row[4] = strconv.FormatFloat(v.Signals.Theta, 'f', 6, 64)
		row[5] = strconv.Itoa(v.Signals.Tau)
		row[6] = strconv.Itoa(v.SampleSize)
		row[7] = joinPrimes(v.Divergent)
	}
	if r.Err != nil {
		row[8] = models.ErrorKind(r.Err)
	}
	if err := s.cw.Write(row); err != nil {
		return err
	}
	s.cw.Flush()
	return s.cw.Error()
}

func (s *CSVReportSink) Close() error {
	s.cw.Flush()
	err := s.cw.Error()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func joinPrimes(ps []uint64) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(parts, " ")
}
