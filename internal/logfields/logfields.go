package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPackage    = "package"
	KeyChangeID   = "change_id"
	KeyOperation  = "operation"
	KeyChannel    = "channel"
	KeyRevision   = "revision"
	KeyTransport  = "transport"
	KeySubject    = "subject"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func ChangeID(id string) slog.Attr    { return slog.String(KeyChangeID, id) }
func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func Channel(c string) slog.Attr      { return slog.String(KeyChannel, c) }
func Revision(r string) slog.Attr     { return slog.String(KeyRevision, r) }
func Transport(t string) slog.Attr    { return slog.String(KeyTransport, t) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
