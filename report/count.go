// Package report counts reads per barcode group and renders the run report.
//
// Counting is a pure fold: each group scan yields an immutable Record and
// the table is the ordered list of those records.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/shenwei356/xopen"
)

// SequenceSuffixes are the file suffixes counted inside a group directory.
var SequenceSuffixes = []string{".fastq.gz", ".fq.gz", ".fastq", ".fq"}

// Record is the read count for one barcode group.
type Record struct {
	Label string `json:"barcode"`
	Reads int64  `json:"reads"`
	Bases int64  `json:"bases"`
}

// CountFile counts complete 4-line records in a FASTQ file, plain or
// gzip-compressed. Bases is the summed length of each record's second line.
// A trailing incomplete record is ignored. Empty files, including empty
// gzip streams, count as zero.
func CountFile(path string) (reads, bases int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	if info.Size() == 0 {
		return 0, 0, nil
	}

	r, err := xopen.Ropen(path)
	if errors.Is(err, xopen.ErrNoContent) {
		// xopen also reports an undecodable first block as no content.
		if err := checkEmptyGzip(path); err != nil {
			return 0, 0, fmt.Errorf("read %s: %w", path, err)
		}
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()

	reads, bases, err = countRecords(r)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return reads, bases, nil
}

func checkEmptyGzip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()
	_, err = io.Copy(io.Discard, zr)
	return err
}

func countRecords(r io.Reader) (reads, bases int64, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024*1024)

	var line int
	var seqLen int64
	for sc.Scan() {
		switch line % 4 {
		case 1:
			seqLen = int64(len(strings.TrimRight(sc.Text(), "\r")))
		case 3:
			reads++
			bases += seqLen
		}
		line++
	}
	return reads, bases, sc.Err()
}

// CountGroup counts every sequence file directly inside dir.
// An empty group yields a zero record.
func CountGroup(dir, label string) (Record, error) {
	files, err := SequenceFiles(dir)
	if err != nil {
		return Record{}, err
	}
	rec := Record{Label: label}
	for _, f := range files {
		reads, bases, err := CountFile(f)
		if err != nil {
			return Record{}, err
		}
		rec.Reads += reads
		rec.Bases += bases
	}
	return rec, nil
}

// SequenceFiles lists the sequence files in dir in name order.
// Hidden files, including in-progress partial outputs, are skipped.
func SequenceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !hasSequenceSuffix(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func hasSequenceSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range SequenceSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
