package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TableHeader is the header row of the read count table.
var TableHeader = []string{"barcode", "reads", "bases"}

// WriteTable writes records as tab-separated rows under TableHeader.
func WriteTable(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(TableHeader, "\t")); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%d\n", r.Label, r.Reads, r.Bases); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteTSV writes the read count table to path, creating parent directories.
func WriteTSV(path string, records []Record) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteTable(f, records)
}

// ReadTable parses a table written by WriteTable.
func ReadTable(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("read count table is empty")
	}
	if got := strings.TrimSpace(sc.Text()); got != strings.Join(TableHeader, "\t") {
		return nil, fmt.Errorf("unexpected read count table header %q", got)
	}

	var records []Record
	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(TableHeader) {
			return nil, fmt.Errorf("line %d: want %d columns, got %d", lineNo, len(TableHeader), len(fields))
		}
		reads, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: reads: %w", lineNo, err)
		}
		bases, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bases: %w", lineNo, err)
		}
		records = append(records, Record{Label: fields[0], Reads: reads, Bases: bases})
	}
	return records, sc.Err()
}

// ReadTSV reads the read count table at path.
func ReadTSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadTable(f)
}
