package lode

import (
	"errors"
	"fmt"
	"strings"
)

// Storage failure classes. Check with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	ErrAuth             = errors.New("authentication failed")
	ErrNetwork          = errors.New("network error")
	ErrUnclassified     = errors.New("storage error")
)

// StorageError is a classified storage failure.
type StorageError struct {
	Kind error
	// Op is write, read or init.
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("lode %s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("lode %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the classification sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapWriteError classifies a write failure. Nil stays nil.
func WrapWriteError(err error, path string) error {
	return wrap("write", path, err)
}

// WrapReadError classifies a read failure. Nil stays nil.
func WrapReadError(err error, path string) error {
	return wrap("read", path, err)
}

// WrapInitError classifies a dataset or store initialization failure.
func WrapInitError(err error, dataset string) error {
	return wrap("init", dataset, err)
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// patterns is checked in order; the first class with a matching substring
// wins. Access denied precedes permission denied so S3 403s are not
// reported as local permission problems.
var patterns = []struct {
	kind  error
	match []string
}{
	{ErrAccessDenied, []string{"accessdenied", "forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "eacces"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "enoent", "404", "nosuchkey", "nosuchbucket"}},
	{ErrDiskFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"}},
	{ErrAuth, []string{"nocredentialproviders", "credentials", "invalidaccesskeyid", "signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "dns", "dial tcp"}},
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		for _, m := range p.match {
			if strings.Contains(msg, m) {
				return p.kind
			}
		}
	}
	return ErrUnclassified
}
