package engine

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MarkdownEngine renders Markdown sources to standalone HTML pages in-process.
// It only supports the html kind and is intended for development setups and
// tests where no sphinx toolchain is installed.
//
// Non-Markdown files are copied verbatim. Without Force, outputs newer than
// their source are left untouched so that unchanged builds keep their mtimes.
type MarkdownEngine struct {
	md goldmark.Markdown
}

// NewMarkdownEngine returns a MarkdownEngine with GitHub-flavoured extensions.
func NewMarkdownEngine() *MarkdownEngine {
	return &MarkdownEngine{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (e *MarkdownEngine) Build(ctx context.Context, req Request) (int, error) {
	logw := req.Log
	if logw == nil {
		logw = io.Discard
	}
	if req.Kind != "html" {
		_, _ = fmt.Fprintf(logw, "markdown engine: unsupported output kind %q\n", req.Kind)
		return 2, nil
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(logw, "markdown engine: %v\n", err)
		return 2, nil
	}

	err := filepath.WalkDir(req.SourceDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != req.SourceDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(req.SourceDir, p)
		if err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			dst := filepath.Join(req.OutputDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
			if !req.Force && upToDate(p, dst) {
				return nil
			}
			_, _ = fmt.Fprintf(logw, "rendering %s\n", rel)
			return e.render(p, dst)
		}
		dst := filepath.Join(req.OutputDir, rel)
		if !req.Force && upToDate(p, dst) {
			return nil
		}
		_, _ = fmt.Fprintf(logw, "copying %s\n", rel)
		return copyPlain(p, dst)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ExitTimeout, nil
		}
		_, _ = fmt.Fprintf(logw, "%s:0: ERROR: %v\n", req.SourceDir, err)
		return 1, nil
	}
	return 0, nil
}

func (e *MarkdownEngine) render(src, dst string) error {
	// #nosec G304 -- src comes from walking the unit's own source directory
	body, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(pageTitle(body, src)))
	buf.WriteString("</title></head><body>\n")
	if err := e.md.Convert(body, &buf); err != nil {
		return fmt.Errorf("render %s: %w", src, err)
	}
	buf.WriteString("</body></html>\n")
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644)
}

// pageTitle returns the first ATX level-one heading, or the file name.
func pageTitle(body []byte, src string) string {
	for _, line := range strings.Split(string(body), "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
}

func upToDate(src, dst string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return di.ModTime().After(si.ModTime())
}

func copyPlain(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	// #nosec G304 -- src comes from walking the unit's own source directory
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
