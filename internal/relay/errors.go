package relay

import (
	"errors"

	"github.com/roomly/backend/internal/domain"
	"github.com/roomly/backend/internal/i18n"
	"github.com/roomly/backend/pkg/validator"
)

var (
	errMalformedFrame = errors.New("malformed frame")
	errUnknownEvent   = errors.New("unknown event")
	errRateLimited    = errors.New("rate limited")
)

// Failure is the payload of every *Failed event
type Failure struct {
	Code   string                     `json:"code"`
	Reason string                     `json:"reason"`
	Ref    string                     `json:"ref,omitempty"`
	Fields validator.ValidationErrors `json:"fields,omitempty"`
}

var failureCodes = []struct {
	err  error
	code string
	key  string
}{
	{domain.ErrValidation, "validation", i18n.ReasonValidation},
	{errMalformedFrame, "validation", i18n.ReasonValidation},
	{errUnknownEvent, "validation", i18n.ReasonValidation},
	{domain.ErrDuplicateRequest, "duplicate_request", i18n.ReasonDuplicateRequest},
	{domain.ErrRejectionLimit, "rejection_limit", i18n.ReasonRejectionLimit},
	{domain.ErrNotFound, "not_found", i18n.ReasonNotFound},
	{domain.ErrForbidden, "forbidden", i18n.ReasonForbidden},
	{domain.ErrInvalidTransition, "invalid_transition", i18n.ReasonInvalidTransition},
	{domain.ErrUnauthenticated, "unauthenticated", i18n.ReasonUnauthenticated},
	{domain.ErrTimeout, "timeout", i18n.ReasonTimeout},
	{errRateLimited, "rate_limited", i18n.ReasonRateLimited},
}

// failure turns an error into a localized failure payload
func failure(catalog *i18n.Catalog, err error, ref string) Failure {
	f := Failure{Code: "internal", Reason: catalog.Text(i18n.ReasonInternal), Ref: ref}
	for _, fc := range failureCodes {
		if errors.Is(err, fc.err) {
			f.Code = fc.code
			f.Reason = catalog.Text(fc.key)
			break
		}
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		f.Fields = verr.Fields
	}
	return f
}
