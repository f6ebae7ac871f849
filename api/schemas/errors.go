// File: api/schemas/errors.go

package schemas

import "fmt"

// RepositoryErrorKind distinguishes fatal repository failures.
type RepositoryErrorKind string

const (
	RepoNotARepository   RepositoryErrorKind = "not-a-repository"
	RepoCorruptedHistory RepositoryErrorKind = "corrupted-history"
)

// RepositoryError is fatal to the history scanner. The pipeline converts it
// into a structured, user-facing result instead of crashing.
type RepositoryError struct {
	Kind RepositoryErrorKind
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository error (%s): %s", e.Kind, e.Path)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// ParseError marks a recoverable per-file failure during intent extraction.
// The file is skipped with a warning; extraction continues elsewhere.
type ParseError struct {
	FilePath string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.FilePath, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ResourceError marks an input that exceeds a configured size bound. It
// triggers scope-limiting (skip or truncate), never a crash.
type ResourceError struct {
	Subject string
	Limit   int64
	Actual  int64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource limit exceeded for %s: %d > %d bytes", e.Subject, e.Actual, e.Limit)
}

// ServiceError classifies failures from the external explanation generator.
// Only transient failures are retried.
type ServiceError struct {
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s service error: %v", class, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
