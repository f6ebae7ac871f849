package history

import (
	"path"
	"path/filepath"

	"hindsight/api/schemas"
)

// PathMatches reports whether two file paths plausibly refer to the same
// file. Traceback paths are often absolute while repository paths are
// relative, so suffix and base-name matches count.
func PathMatches(a, b string) bool {
	a = filepath.ToSlash(a)
	b = filepath.ToSlash(b)
	if a == "" || b == "" {
		return false
	}
	return a == b ||
		suffixMatch(a, b) || suffixMatch(b, a) ||
		path.Base(a) == path.Base(b)
}

// suffixMatch requires the suffix to align on a path separator so that
// "service.py" does not match "user_service.py".
func suffixMatch(full, suffix string) bool {
	if len(full) <= len(suffix) {
		return false
	}
	if full[len(full)-len(suffix):] != suffix {
		return false
	}
	return full[len(full)-len(suffix)-1] == '/'
}

// Overlaps reports whether any changed file matches any affected file.
func Overlaps(changed []string, affected []string) bool {
	for _, cf := range changed {
		for _, af := range affected {
			if PathMatches(cf, af) {
				return true
			}
		}
	}
	return false
}

// FilterByFiles returns the subset of records touching at least one file in
// the given set, preserving scan order. It is a pure function over an
// already-scanned sequence.
func FilterByFiles(records []schemas.CommitRecord, files []string) []schemas.CommitRecord {
	var out []schemas.CommitRecord
	for _, rec := range records {
		if Overlaps(rec.ChangedFiles, files) {
			out = append(out, rec)
		}
	}
	return out
}
