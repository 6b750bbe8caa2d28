package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"git.home.luguber.info/inful/reportbuilder/internal/eventstore"
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/reports"
	"git.home.luguber.info/inful/reportbuilder/internal/server/responses"
	"git.home.luguber.info/inful/reportbuilder/internal/sourcerepo"
	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxUploadMemory  = 32 << 20
	maxSourceBytes   = 8 << 20
)

// ReportService is the part of reports.Service the handlers need.
type ReportService interface {
	List() ([]reports.Summary, error)
	MainArtifact(ctx context.Context, name string, kind unit.Kind) (string, error)
	Asset(name string, kind unit.Kind, rel string) (string, error)
	Build(ctx context.Context, name string, kind unit.Kind, force bool) (*reports.BuildResult, error)
	SaveSource(ctx context.Context, name, text string, author sourcerepo.Author) (string, error)
	Source(name, commit string) (string, error)
	Commits(name string, limit int) ([]sourcerepo.Commit, error)
	Versions(name string, kind unit.Kind) ([]unit.Version, error)
	VersionFile(name string, kind unit.Kind, version, rel string) (string, error)
	Upload(name, filename string, r io.Reader, label, caption string) (*reports.UploadResult, error)
	Logs(name string, kind unit.Kind) (*reports.LogReport, error)
	History(ctx context.Context, name string, limit int) ([]*eventstore.BuildSummary, error)
}

// ReportHandlers serves the /api/reports tree.
type ReportHandlers struct {
	svc          ReportService
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewReportHandlers creates report handlers backed by svc.
func NewReportHandlers(svc ReportService, adapter *derrors.HTTPErrorAdapter) *ReportHandlers {
	if adapter == nil {
		adapter = derrors.NewHTTPErrorAdapter(slog.Default())
	}
	return &ReportHandlers{svc: svc, errorAdapter: adapter}
}

// HandleList handles GET /api/reports.
func (h *ReportHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List()
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.ReportListResponse{Reports: list})
}

// HandleContent handles GET /api/reports/{unit}/content/{kind}. The output
// is built first when stale. html is redirected to its file under the asset
// route so that relative links inside the page resolve.
func (h *ReportHandlers) HandleContent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("unit")
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	path, err := h.svc.MainArtifact(r.Context(), name, kind)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if kind == unit.KindHTML {
		target := "/api/reports/" + url.PathEscape(name) + "/content/html/" + url.PathEscape(filepath.Base(path))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	h.serveFile(w, r, path)
}

// HandleAsset handles GET /api/reports/{unit}/content/{kind}/{path...}.
func (h *ReportHandlers) HandleAsset(w http.ResponseWriter, r *http.Request) {
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	path, err := h.svc.Asset(r.PathValue("unit"), kind, r.PathValue("path"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.serveFile(w, r, path)
}

// HandleBuild handles POST /api/reports/{unit}/build/{kind}. The build is
// forced unless ?force=false. A failing engine still answers 200; the exit
// code is in the body.
func (h *ReportHandlers) HandleBuild(w http.ResponseWriter, r *http.Request) {
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	force := true
	if v := r.URL.Query().Get("force"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, derrors.ValidationError("invalid force parameter").
				WithContext("force", v).Build())
			return
		}
	}
	res, err := h.svc.Build(r.Context(), r.PathValue("unit"), kind, force)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.BuildResponse{
		BuildResult: res,
		DurationMS:  res.Duration.Milliseconds(),
	})
}

// HandleSaveSource handles POST /api/reports/{unit}/source.
func (h *ReportHandlers) HandleSaveSource(w http.ResponseWriter, r *http.Request) {
	var req responses.SaveSourceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSourceBytes))
	if err := dec.Decode(&req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.ValidationError("invalid JSON body").WithCause(err).Build())
		return
	}
	author := sourcerepo.Author{Name: req.AuthorName, Email: req.AuthorEmail}
	hash, err := h.svc.SaveSource(r.Context(), r.PathValue("unit"), req.SourceText, author)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.SaveSourceResponse{Committed: hash != "", Commit: hash})
}

// HandleSource handles GET /api/reports/{unit}/source[?commit=<rev>].
func (h *ReportHandlers) HandleSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("unit")
	commit := r.URL.Query().Get("commit")
	text, err := h.svc.Source(name, commit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.SourceResponse{Unit: name, Commit: commit, SourceText: text})
}

// HandleCommits handles GET /api/reports/{unit}/commits[?limit=n].
func (h *ReportHandlers) HandleCommits(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	name := r.PathValue("unit")
	commits, err := h.svc.Commits(name, limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.CommitsResponse{Unit: name, Commits: commits})
}

// HandleVersions handles GET /api/reports/{unit}/versions/{kind}.
func (h *ReportHandlers) HandleVersions(w http.ResponseWriter, r *http.Request) {
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	name := r.PathValue("unit")
	versions, err := h.svc.Versions(name, kind)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.VersionsResponse{Unit: name, Kind: kind, Versions: versions})
}

// HandleVersionFile handles GET /api/reports/{unit}/versions/{kind}/{version}/{path...}.
func (h *ReportHandlers) HandleVersionFile(w http.ResponseWriter, r *http.Request) {
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	path, err := h.svc.VersionFile(r.PathValue("unit"), kind, r.PathValue("version"), r.PathValue("path"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.serveFile(w, r, path)
}

// HandleUpload handles POST /api/reports/{unit}/upload with a multipart
// form carrying file, label and caption.
func (h *ReportHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.ValidationError("invalid multipart form").WithCause(err).Build())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.ValidationError("missing file part").WithCause(err).Build())
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.svc.Upload(r.PathValue("unit"), header.Filename, file, r.FormValue("label"), r.FormValue("caption"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, res)
}

// HandleLogs handles GET /api/reports/{unit}/logs/{kind}.
func (h *ReportHandlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	kind, err := unit.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	name := r.PathValue("unit")
	report, err := h.svc.Logs(name, kind)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.LogsResponse{Unit: name, Kind: kind, Log: report.Log, Errors: report.Errors})
}

// HandleHistory handles GET /api/reports/{unit}/history[?limit=n].
func (h *ReportHandlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	name := r.PathValue("unit")
	builds, err := h.svc.History(r.Context(), name, limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, &responses.HistoryResponse{Unit: name, Builds: builds})
}

func (h *ReportHandlers) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSONPretty(w, r, status, v); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.WrapError(err, derrors.CategoryInternal, "failed to write response").Build())
	}
}

func (h *ReportHandlers) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	// #nosec G304 -- path was resolved inside a unit directory by the service
	f, err := os.Open(path)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.NotFoundError("file not found").WithCause(err).Build())
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.NotFoundError("file not found").
			WithContext("file", filepath.Base(path)).Build())
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, derrors.ValidationError("invalid limit parameter").WithContext("limit", v).Build()
	}
	return min(n, maxListLimit), nil
}
