package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "unknown output kind").
			WithSeverity(SeverityFatal).
			WithContext("kind", "epub").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "unknown output kind", err.Message())

		kind, ok := err.Context().GetString("kind")
		require.True(t, ok)
		assert.Equal(t, "epub", kind)
	})

	t.Run("Cause is preserved through wrapping", func(t *testing.T) {
		err := FileSystemError("create unit skeleton").WithCause(fs.ErrPermission).Build()
		wrapped := fmt.Errorf("provision: %w", err)

		assert.ErrorIs(t, wrapped, fs.ErrPermission)
		c, ok := AsClassified(wrapped)
		require.True(t, ok)
		assert.Equal(t, CategoryFileSystem, c.Category())
		assert.True(t, HasCategory(wrapped, CategoryFileSystem))
	})

	t.Run("Unclassified errors default to internal", func(t *testing.T) {
		assert.Equal(t, CategoryInternal, GetCategory(stderrors.New("boom")))
	})
}

func TestExitCode(t *testing.T) {
	code, ok := ExitCode(BuildFailure("engine failed", 2).Build())
	require.True(t, ok)
	assert.Equal(t, 2, code)

	_, ok = ExitCode(ConfigError("nope").Build())
	assert.False(t, ok)
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := NotFoundError("unit not found").Build()
	derived := base.WithContext("unit", "net1")

	_, ok := base.Context().Get("unit")
	assert.False(t, ok)
	v, _ := derived.Context().GetString("unit")
	assert.Equal(t, "net1", v)
}

func TestHTTPErrorAdapterStatusCodes(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	cases := map[*ClassifiedError]int{
		ConfigError("bad kind").Build():             http.StatusBadRequest,
		AlreadyExistsError("exists").Build():        http.StatusConflict,
		NotFoundError("missing").Build():            http.StatusNotFound,
		BuildFailure("failed", 1).Build():           http.StatusUnprocessableEntity,
		FileSystemError("disk").Build():             http.StatusInternalServerError,
		ValidationError("bad request body").Build(): http.StatusBadRequest,
	}
	for err, want := range cases {
		assert.Equal(t, want, a.StatusCodeFor(err), err.Error())
	}
	assert.Equal(t, http.StatusInternalServerError, a.StatusCodeFor(stderrors.New("x")))
}

func TestHTTPErrorAdapterWritesJSON(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/x", nil)

	a.WriteErrorResponse(rec, req, NotFoundError("unit not found").WithContext("unit", "x").Build())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
	assert.Contains(t, rec.Body.String(), `"unit":"x"`)
}

func TestCLIErrorAdapter(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	assert.Equal(t, 0, a.ExitCodeFor(nil))
	assert.Equal(t, 3, a.ExitCodeFor(AlreadyExistsError("exists").Build()))
	assert.Equal(t, 7, a.ExitCodeFor(ConfigError("bad").Build()))
	assert.Equal(t, 1, a.ExitCodeFor(stderrors.New("plain")))
	assert.Equal(t, "Error: exists", a.FormatError(AlreadyExistsError("exists").Build()))
}
