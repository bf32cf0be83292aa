package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/pkg/response"
)

var statusCodes = []struct {
	err    error
	status int
	code   string
	key    string
}{
	{domain.ErrValidation, http.StatusBadRequest, "VALIDATION_FAILED", i18n.ReasonValidation},
	{domain.ErrDuplicateRequest, http.StatusConflict, "DUPLICATE_REQUEST", i18n.ReasonDuplicateRequest},
	{domain.ErrRejectionLimit, http.StatusConflict, "REJECTION_LIMIT", i18n.ReasonRejectionLimit},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND", i18n.ReasonNotFound},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN", i18n.ReasonForbidden},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION", i18n.ReasonInvalidTransition},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED", i18n.ReasonUnauthenticated},
	{domain.ErrTimeout, http.StatusGatewayTimeout, "TIMEOUT", i18n.ReasonTimeout},
}

// errorWriter maps domain errors onto the response envelope
type errorWriter struct {
	catalog *i18n.Catalog
	logger  *zap.Logger
}

func newErrorWriter(catalog *i18n.Catalog, logger *zap.Logger) errorWriter {
	if catalog == nil {
		catalog = i18n.New("en")
	}
	return errorWriter{catalog: catalog, logger: logger}
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	for _, sc := range statusCodes {
		if !errors.Is(err, sc.err) {
			continue
		}
		if sc.status == http.StatusGatewayTimeout {
			e.logger.Error("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			response.ErrorWithDetails(w, sc.status, sc.code, e.catalog.Text(sc.key), verr.Fields)
			return
		}
		response.Error(w, sc.status, sc.code, e.catalog.Text(sc.key))
		return
	}

	e.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	response.InternalError(w, e.catalog.Text(i18n.ReasonInternal))
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pagination reads page/limit query params into limit/offset
func pagination(r *http.Request, defaultLimit int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return limit, (page - 1) * limit
}
