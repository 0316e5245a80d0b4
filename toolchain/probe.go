package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// Demux flags every supported demultiplexer release must accept.
const (
	FlagOutputDir          = "--output-dir"
	FlagBarcodeArrangement = "--barcode-arrangement"
)

const maxHelpOutputBytes = 1 << 20

// SequenceFlagSpellings lists known spellings of the barcode-sequence flag,
// newest first. The first spelling present in the help text wins.
var SequenceFlagSpellings = []string{
	"--barcode-sequences",
	"--barcode-seqs",
}

// ErrIncompatible indicates the installed demultiplexer lacks a required flag.
var ErrIncompatible = errors.New("incompatible demultiplexer")

// Profile is the resolved flag surface of the installed demultiplexer.
type Profile struct {
	// SequenceFlag is the canonical barcode-sequence flag spelling.
	SequenceFlag string
}

// ResolveCapabilities derives a Profile from demux help text.
// Flags are matched as whole tokens.
func ResolveCapabilities(help string) (Profile, error) {
	tokens := flagTokens(help)

	var missing []string
	for _, flag := range []string{FlagOutputDir, FlagBarcodeArrangement} {
		if !tokens[flag] {
			missing = append(missing, flag)
		}
	}
	if len(missing) > 0 {
		return Profile{}, fmt.Errorf("%w: missing required flag(s) %s", ErrIncompatible, strings.Join(missing, ", "))
	}

	for _, spelling := range SequenceFlagSpellings {
		if tokens[spelling] {
			return Profile{SequenceFlag: spelling}, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: no barcode-sequence flag, tried %s",
		ErrIncompatible, strings.Join(SequenceFlagSpellings, ", "))
}

// flagTokens extracts every "--flag" token from help text.
// Tokens end at whitespace or punctuation other than '-' and '_',
// so "--barcode-sequences," and "--barcode-sequences=<path>" both yield
// "--barcode-sequences".
func flagTokens(help string) map[string]bool {
	tokens := make(map[string]bool)
	fields := strings.FieldsFunc(help, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '=' || r == '[' || r == ']' ||
			r == '(' || r == ')' || r == '<' || r == '>' || r == '|' || r == '"' || r == '\''
	})
	for _, f := range fields {
		f = strings.TrimRight(f, ".:;")
		if strings.HasPrefix(f, "--") && len(f) > 2 {
			tokens[f] = true
		}
	}
	return tokens
}

// Prober resolves the capability profile at most once per process.
type Prober struct {
	runner Runner
	tool   string

	once    sync.Once
	profile Profile
	err     error
}

// NewProber creates a prober for the demultiplexer at tool.
func NewProber(runner Runner, tool string) *Prober {
	return &Prober{runner: runner, tool: tool}
}

// Profile runs "<tool> demux --help" on first call and caches the outcome.
// The exit code is ignored since some releases exit non-zero for --help.
func (p *Prober) Profile(ctx context.Context) (Profile, error) {
	p.once.Do(func() {
		p.profile, p.err = p.probe(ctx)
	})
	return p.profile, p.err
}

func (p *Prober) probe(ctx context.Context) (Profile, error) {
	var stdout bytes.Buffer
	res, err := p.runner.Run(ctx, Invocation{
		Name:   "demux-probe",
		Path:   p.tool,
		Args:   []string{"demux", "--help"},
		Stdout: &limitedWriter{w: &stdout, remaining: maxHelpOutputBytes},
	})
	if err != nil {
		return Profile{}, fmt.Errorf("%w: cannot run %s: %w", ErrIncompatible, p.tool, err)
	}
	help := stdout.String() + "\n" + string(res.Stderr)
	return ResolveCapabilities(help)
}

// limitedWriter drops bytes past its budget while reporting full writes.
type limitedWriter struct {
	w         *bytes.Buffer
	remaining int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.remaining <= 0 {
		return n, nil
	}
	if len(p) > l.remaining {
		p = p[:l.remaining]
	}
	l.w.Write(p)
	l.remaining -= len(p)
	return n, nil
}
