package metrics

import (
	"errors"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	obserrors "github.com/target/catalog-admin/internal/observability/errors"
	"github.com/target/catalog-admin/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metric names.
const (
	AuthValidate   = "auth.validate"
	AuthLogin      = "auth.login"
	AuthRefresh    = "auth.refresh"
	AuthLogout     = "auth.logout"
	SessionsReaped = "sessions.reaped"
	ReaperDuration = "sessions.reaper.duration"
)

// SessionOutcome maps a validation/refresh error to a stable tag value.
func SessionOutcome(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, domainauth.ErrNoSession):
		return "no_session"
	case errors.Is(err, domainauth.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, domainauth.ErrSessionExpired):
		return "expired"
	case errors.Is(err, domainauth.ErrSessionIdle):
		return "idle_timeout"
	default:
		return ResultError
	}
}

// EmitSessionCheck counts one validation or refresh attempt.
func EmitSessionCheck(sink statsd.Sink, name string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": SessionOutcome(err)}
	if tags["result"] == ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count(name, 1, tags)
}

// EmitLogin counts a login attempt for method (password, oauth, mock).
func EmitLogin(sink statsd.Sink, method string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		result = "invalid_credentials"
	case errors.Is(err, domainauth.ErrAccountDisabled):
		result = "disabled"
	case errors.Is(err, domainauth.ErrAccessDenied):
		result = "denied"
	default:
		result = ResultError
	}
	sink.Count(AuthLogin, 1, map[string]string{"method": method, "result": result})
}

// EmitResult counts a plain success/error event.
func EmitResult(sink statsd.Sink, name string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	sink.Count(name, 1, map[string]string{"result": result})
}

// EmitReap records one reaper sweep.
func EmitReap(sink statsd.Sink, removed int64, took time.Duration, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case err != nil:
		result = ResultError
	case removed == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	if removed > 0 {
		sink.Count(SessionsReaped, removed, tags)
	}
	sink.Timing(ReaperDuration, took, tags)
}
