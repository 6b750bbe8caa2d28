package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyUnit       = "unit"
	KeyKind       = "kind"
	KeyVersion    = "version"
	KeyBuildID    = "build_id"
	KeyExitCode   = "exit_code"
	KeyChanged    = "changed_files"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyCommit     = "commit"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyJobName    = "job_name"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Unit(name string) slog.Attr      { return slog.String(KeyUnit, name) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Changed(n int) slog.Attr         { return slog.Int(KeyChanged, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Commit(hash string) slog.Attr    { return slog.String(KeyCommit, hash) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr   { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func JobName(n string) slog.Attr      { return slog.String(KeyJobName, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
