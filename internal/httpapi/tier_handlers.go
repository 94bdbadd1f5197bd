package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"tiergate.dev/internal/tier"
	"tiergate.dev/internal/tierrequest"
)

type submitRequest struct {
	RequestedTier string `json:"requestedTier"`
	VendorNotes   string `json:"vendorNotes"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejectionReason"`
}

func (a *API) listTierRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := tierrequest.Filter{
		Status:   tierrequest.Status(q.Get("status")),
		Type:     tierrequest.Type(q.Get("type")),
		VendorID: q.Get("vendorId"),
	}
	var err error
	if f.Page, err = parsePositiveInt(q.Get("page"), 1); err != nil {
		writeFieldError(w, r, "page", "page must be a positive integer")
		return
	}
	if f.Limit, err = parsePositiveInt(q.Get("limit"), 20); err != nil {
		writeFieldError(w, r, "limit", "limit must be a positive integer")
		return
	}
	page, err := a.requests.List(r.Context(), principal(r), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getTierRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.requests.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (a *API) approveTierRequest(w http.ResponseWriter, r *http.Request) {
	req, err := a.requests.Approve(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": req})
}

func (a *API) rejectTierRequest(w http.ResponseWriter, r *http.Request) {
	var body rejectRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	req, err := a.requests.Reject(r.Context(), principal(r), r.PathValue("id"), body.RejectionReason)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": req})
}

func (a *API) submitTierRequest(typ tierrequest.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body submitRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
			return
		}
		req, err := a.requests.Submit(r.Context(), principal(r), r.PathValue("id"), typ, body.RequestedTier, body.VendorNotes)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "request": req})
	}
}

// currentTierRequest returns the pending request, or null, plus the most
// recent one in any state.
func (a *API) currentTierRequest(typ tierrequest.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, vendorID := principal(r), r.PathValue("id")
		pending, err := a.requests.Pending(r.Context(), p, vendorID, typ)
		if err != nil {
			handleError(w, r, err)
			return
		}
		latest, err := a.requests.MostRecent(r.Context(), p, vendorID, typ)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request": pending, "mostRecent": latest})
	}
}

func (a *API) cancelTierRequest(typ tierrequest.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := a.requests.Cancel(r.Context(), principal(r), r.PathValue("id"), typ, r.PathValue("requestId"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": req})
	}
}

func (a *API) vendorTier(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	v, err := a.requests.Vendor(r.Context(), p, r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vendorId": v.ID,
		"summary":  tier.Describe(v.Tier, p.IsAdmin()),
	})
}

func (a *API) vendorFeature(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	v, err := a.requests.Vendor(r.Context(), p, r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	f := tier.Feature(r.PathValue("feature"))
	required := tier.UpgradePath(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"feature":      f,
		"known":        tier.KnownFeature(f),
		"allowed":      tier.HasTierAccess(v.Tier, required, p.IsAdmin()),
		"currentTier":  tier.Normalize(v.Tier),
		"requiredTier": required,
	})
}

func parsePositiveInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
