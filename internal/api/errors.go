package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case resilience.KindNoData:
		return http.StatusNotFound
	case resilience.KindResolution:
		return http.StatusUnprocessableEntity
	case resilience.KindValidation:
		return http.StatusBadRequest
	case resilience.KindDataSource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := resilience.Kind(err)
	status := statusFor(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err),
		)
		if kind == resilience.KindInternal {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// query holds the parsed month, role and field parameters.
type query struct {
	month model.Month
	role  model.RoleFilter
	field model.FeedbackField
}

// parseQuery reads month, role and field. A missing month means latest.
func parseQuery(r *http.Request) (query, error) {
	var q query
	v := r.URL.Query()

	if s := v.Get("month"); s != "" {
		m, err := model.ParseMonth(s)
		if err != nil {
			return q, &resilience.ValidationError{Field: "month", Value: s, Msg: "must be YYYY-MM"}
		}
		q.month = m
	}

	role, ok := model.ParseRoleFilter(v.Get("role"))
	if !ok {
		return q, &resilience.ValidationError{Field: "role", Value: v.Get("role"), Msg: "must be All, Setter, Closer or Manager"}
	}
	q.role = role

	if s := v.Get("field"); s != "" {
		f, err := model.ParseFeedbackField(s)
		if err != nil {
			return q, &resilience.ValidationError{Field: "field", Value: s, Msg: "unknown feedback field"}
		}
		q.field = f
	}
	return q, nil
}
