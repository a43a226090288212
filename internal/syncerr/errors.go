// Package syncerr defines the error taxonomy shared across the sync pipeline.
package syncerr

import (
	"errors"
	"fmt"
)

// Remote errors returned by the Confluence client. File-scoped: the run
// driver logs them per file and continues with the rest of the batch.
var (
	// ErrRemoteNotFound means a page ID from frontmatter no longer exists.
	ErrRemoteNotFound = errors.New("remote page not found")
	// ErrRemoteConflict means the version marker was stale (concurrent edit).
	ErrRemoteConflict = errors.New("remote version conflict")
	// ErrRemoteUnavailable covers transport and auth failures.
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// MetadataParseError reports a malformed frontmatter block. The document
// had a well-delimited header, but its contents could not be parsed.
type MetadataParseError struct {
	Err error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("malformed frontmatter: %v", e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// ConversionError reports body text the converter could not process.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// FileError wraps any file-scoped failure with the offending path so the
// run driver can log it with context.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
