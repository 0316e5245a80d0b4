package convert

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// Compressor names, in preference order.
const (
	CompressorPigz    = "pigz"
	CompressorGzip    = "gzip"
	CompressorBuiltin = "builtin"
)

// compressor gzip-compresses a stream.
type compressor struct {
	name string
	path string
	args []string
}

// selectCompressor prefers the parallel external compressor, then the
// single-threaded one, then the in-process encoder.
func selectCompressor(loc toolchain.Locator, tools types.ToolPaths, threads int) compressor {
	if toolchain.Available(loc, tools.Pigz) {
		return compressor{name: CompressorPigz, path: tools.Pigz, args: []string{"-c", "-p", strconv.Itoa(threads)}}
	}
	if toolchain.Available(loc, tools.Gzip) {
		return compressor{name: CompressorGzip, path: tools.Gzip, args: []string{"-c"}}
	}
	return compressor{name: CompressorBuiltin}
}

// compress reads r to EOF and writes gzip output to w.
func (c compressor) compress(ctx context.Context, runner toolchain.Runner, r io.Reader, w io.Writer) error {
	if c.name == CompressorBuiltin {
		zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			_ = zw.Close()
			return fmt.Errorf("builtin gzip: %w", err)
		}
		return zw.Close()
	}
	_, err := toolchain.RunChecked(ctx, runner, toolchain.Invocation{
		Name:   c.name,
		Path:   c.path,
		Args:   c.args,
		Stdin:  r,
		Stdout: w,
	})
	return err
}
