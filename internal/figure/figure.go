// Package figure prepares uploaded figure files for inclusion in a report
// source: safe file names, collision free paths and the reST figure directive.
package figure

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

// DefaultAllowedExtensions are accepted when none are configured.
var DefaultAllowedExtensions = []string{"txt", "pdf", "png", "jpg", "jpeg", "gif"}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces name to a portable ASCII file name: compatibility
// decomposition, non-ASCII dropped, path separators and whitespace turned
// into underscores, and leading or trailing dots and underscores removed.
// The result may be empty.
func SecureFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}
	ascii = strings.NewReplacer("/", " ", `\`, " ").Replace(ascii)
	ascii = strings.Join(strings.Fields(ascii), "_")
	return strings.Trim(unsafeChars.ReplaceAllString(ascii, ""), "._")
}

// Allowed reports whether the extension of name (case-insensitive, without
// the dot) is in exts.
func Allowed(name string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(exts, func(e string) bool {
		return strings.EqualFold(strings.TrimPrefix(e, "."), ext)
	})
}

// UniquePath returns a path in dir for name that does not exist yet, adding
// _1, _2, ... before the extension as needed.
func UniquePath(dir, name string) (string, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	ext := filepath.Ext(name)
	candidate := name
	for i := 1; ; i++ {
		p := filepath.Join(dir, candidate)
		_, err := os.Lstat(p)
		if os.IsNotExist(err) {
			return p, nil
		}
		if err != nil {
			return "", derrors.FileSystemError("failed to inspect upload path").WithCause(err).WithContext("path", p).Build()
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// Prepare validates an uploaded file name against exts and returns the
// path under dir where it should be stored.
func Prepare(dir, name string, exts []string) (string, error) {
	if name == "" {
		return "", derrors.ValidationError("no file selected").Build()
	}
	if !Allowed(name, exts) {
		return "", derrors.ValidationError("invalid file extension").WithContext("file", name).Build()
	}
	safe := SecureFilename(name)
	if safe == "" || !Allowed(safe, exts) {
		return "", derrors.ValidationError("invalid file name").WithContext("file", name).Build()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", derrors.FileSystemError("failed to create upload directory").WithCause(err).WithContext("path", dir).Build()
	}
	return UniquePath(dir, safe)
}

// Directive renders the reST figure directive for a file at relPath
// (relative to the source directory). Blank label and caption are omitted;
// caption continuation lines are indented to stay inside the directive.
func Directive(relPath, label, caption string) string {
	var b strings.Builder
	if label = strings.TrimSpace(label); label != "" {
		fmt.Fprintf(&b, ".. _%s:\n\n", label)
	}
	caption = strings.ReplaceAll(strings.TrimSpace(caption), "\n", "\n   ")
	fmt.Fprintf(&b, ".. figure:: ./%s\n\n   %s", filepath.ToSlash(relPath), caption)
	return b.String()
}
