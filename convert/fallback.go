package convert

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// fallback streams "<basecaller> summary bam" through the summary parser
// into dst.
func (e *Engine) fallback(ctx context.Context, bam, dst string) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	partial := partialPath(dst)
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
			removeIfEmpty(dir)
		}
	}()
	// xopen picks gzip from the .gz suffix, which partialPath keeps.
	out, err := xopen.Wopen(partial)
	if err != nil {
		return fmt.Errorf("open %s: %w", partial, err)
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	var written int
	g.Go(func() error {
		_, err := toolchain.RunChecked(gctx, e.runner, toolchain.Invocation{
			Name:   "basecaller-summary",
			Path:   e.tools.Basecaller,
			Args:   toolchain.SummaryArgs(bam),
			Stdout: pw,
		})
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		n, err := WriteFASTQFromSummary(pr, out, e.columns)
		written = n
		_ = pr.CloseWithError(err)
		return err
	})
	if err = g.Wait(); err != nil {
		_ = out.Close()
		return err
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", partial, err)
	}
	if written == 0 {
		e.logger.Warn("read summary produced no records", map[string]any{"unit": bam})
	}
	return os.Rename(partial, dst)
}

// WriteFASTQFromSummary converts tab-separated summary rows into FASTQ
// records on w. The first row is a header. Rows too short for the
// configured columns are skipped. A quality string whose length differs from
// the sequence is replaced by '!' padding of sequence length.
// Returns the number of records written.
func WriteFASTQFromSummary(r io.Reader, w *xopen.Writer, cols types.FallbackColumns) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	need := max(cols.ID, cols.Sequence, cols.Quality) + 1
	header := true
	n := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if header {
			header = false
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < need {
			continue
		}
		id, sequence, qual := fields[cols.ID], fields[cols.Sequence], fields[cols.Quality]
		if id == "" || sequence == "" {
			continue
		}
		if len(qual) != len(sequence) {
			qual = strings.Repeat("!", len(sequence))
		}
		rec, err := newRecord(id, sequence, qual)
		if err != nil {
			return n, fmt.Errorf("record %s: %w", id, err)
		}
		rec.FormatToWriter(w, 0)
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read summary: %w", err)
	}
	w.Flush()
	return n, nil
}

func newRecord(id, sequence, qual string) (*fastx.Record, error) {
	s, err := seq.NewSeqWithQual(seq.Unlimit, []byte(sequence), []byte(qual))
	if err != nil {
		return nil, err
	}
	return &fastx.Record{ID: []byte(id), Name: []byte(id), Seq: s}, nil
}
