package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/closingroom/pkg/billing"
	"github.com/platinummonkey/closingroom/pkg/contracts"
	"github.com/platinummonkey/closingroom/pkg/drafting"
	"github.com/platinummonkey/closingroom/pkg/httputil"
	"github.com/platinummonkey/closingroom/pkg/observability"
	"github.com/platinummonkey/closingroom/pkg/plans"
	"github.com/platinummonkey/closingroom/pkg/properties"
	"github.com/platinummonkey/closingroom/pkg/teams"
	"github.com/platinummonkey/closingroom/pkg/templates"
)

var (
	notFoundErrors = []error{
		teams.ErrNotFound,
		teams.ErrMemberNotFound,
		teams.ErrInvitationNotFound,
		properties.ErrNotFound,
		contracts.ErrNotFound,
		templates.ErrNotFound,
		billing.ErrNotFound,
	}
	conflictErrors = []error{
		teams.ErrSlugTaken,
		teams.ErrAlreadyMember,
		teams.ErrOwnerRequired,
		teams.ErrInvitationAccepted,
		properties.ErrInUse,
		contracts.ErrNotDraft,
		contracts.ErrNotGenerated,
		contracts.ErrMissingFields,
		templates.ErrAlreadyExists,
		billing.ErrCanceled,
		billing.ErrAlreadyExists,
		billing.ErrCycleNotFinished,
	}
	badRequestErrors = []error{
		teams.ErrInvalidRole,
		contracts.ErrTemplateRequired,
		templates.ErrInvalid,
		plans.ErrUnknownTier,
	}
	unprocessableErrors = []error{
		contracts.ErrInvalidTransition,
		templates.ErrNoSigners,
		templates.ErrZonesDoNotFit,
		templates.ErrInvalidZoneSpec,
	}
)

// writeError maps a service error to its HTTP response. Unknown errors are logged and
// answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.WriteLimitError(w, err) {
		return
	}

	var syntaxErr *templates.SyntaxError
	switch {
	case isAny(err, notFoundErrors):
		httputil.WriteNotFoundError(w, err.Error())
	case isAny(err, conflictErrors):
		httputil.WriteConflict(w, err.Error())
	case isAny(err, badRequestErrors):
		httputil.WriteBadRequest(w, err.Error())
	case isAny(err, unprocessableErrors), errors.As(err, &syntaxErr):
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, teams.ErrInvitationExpired):
		httputil.WriteErrorMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, teams.ErrInvitationEmailMismatch):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, drafting.ErrDisabled):
		httputil.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, drafting.ErrEmptyCompletion):
		httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).Error("Request failed")
		httputil.WriteInternalError(w, err)
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
