package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
)

// DefaultSphinxBinary is the executable looked up on PATH when none is configured.
const DefaultSphinxBinary = "sphinx-build"

// waitDelay bounds how long output pipes are drained after the process is killed.
const waitDelay = 5 * time.Second

// SphinxEngine invokes the sphinx-build binary.
//
// html and latex builds run the named builder directly into the output
// directory. pdf builds use make-mode (-M latexpdf) rooted at the parent of the
// output directory, so the rendered PDF lands in the sibling latex directory;
// the build manager relocates it afterwards.
type SphinxEngine struct {
	Binary string
	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

// NewSphinxEngine returns an engine using binary, or sphinx-build when empty.
func NewSphinxEngine(binary string) *SphinxEngine {
	if binary == "" {
		binary = DefaultSphinxBinary
	}
	return &SphinxEngine{Binary: binary, lookPath: exec.LookPath}
}

// Args returns the command line arguments for req.
func (e *SphinxEngine) Args(req Request) []string {
	if req.Kind == "pdf" {
		args := []string{"-M", "latexpdf", req.SourceDir, filepath.Dir(req.OutputDir), "-c", req.ConfigDir}
		if req.Force {
			args = append(args, "-E", "-a")
		}
		return args
	}
	args := []string{"-b", req.Kind, "-c", req.ConfigDir, "-E"}
	if req.Force {
		args = append(args, "-a")
	}
	return append(args, req.SourceDir, req.OutputDir)
}

func (e *SphinxEngine) Build(ctx context.Context, req Request) (int, error) {
	bin, err := e.lookPath(e.Binary)
	if err != nil {
		return -1, derrors.WrapError(err, derrors.CategoryConfig, "documentation engine not found").
			WithContext("binary", e.Binary).
			Build()
	}

	args := e.Args(req)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = req.SourceDir
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	if req.Log != nil {
		cmd.Stdout = io.MultiWriter(&out, req.Log)
	} else {
		cmd.Stdout = &out
	}
	cmd.Stderr = cmd.Stdout

	slog.Debug("Invoking sphinx-build", logfields.Kind(req.Kind), slog.Any("args", args))
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return ExitTimeout, nil
		}
		slog.Warn("sphinx-build exited with errors",
			logfields.Kind(req.Kind),
			logfields.ExitCode(exitErr.ExitCode()),
			slog.Int("error_lines", len(ErrorLines(out.String(), req.Kind))))
		return exitErr.ExitCode(), nil
	}
	return -1, derrors.WrapError(err, derrors.CategoryBuild, "failed to run documentation engine").Build()
}
