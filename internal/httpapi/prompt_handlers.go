package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
	"promptdeck.org/internal/auth"
	"promptdeck.org/internal/prompts"
)

type reviewRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type featureRequest struct {
	Featured bool `json:"featured"`
}

type uploadRequest struct {
	Items []prompts.RawPrompt `json:"items"`
}

type uploadResponse struct {
	Accepted []prompts.Prompt         `json:"accepted"`
	Rejected []prompts.RejectedPrompt `json:"rejected"`
}

func (a *API) handlePromptsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPrompts(w, r)
	case http.MethodPost:
		a.submitPrompt(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePromptResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/prompts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "upload" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.uploadPrompts(w, r)
		return
	}

	idPart, action, _ := strings.Cut(path, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.getPrompt(w, r, id)
		case http.MethodPatch:
			a.editPrompt(w, r, id)
		case http.MethodDelete:
			a.deletePrompt(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case "publish":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.publishPrompt(w, r, id)
	case "review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.reviewPrompt(w, r, id)
	case "feature":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.featurePrompt(w, r, id)
	case "like":
		switch r.Method {
		case http.MethodPost:
			a.likePrompt(w, r, id, true)
		case http.MethodDelete:
			a.likePrompt(w, r, id, false)
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// reviewer reports whether the request carries an identity allowed to see
// unpublished content. Anonymous browsing only sees the approved catalog.
func (a *API) reviewer(r *http.Request) (accounts.Account, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return accounts.Account{}, false
	}
	acct, err := a.accounts.Get(r.Context(), identity.AccountID)
	if err != nil {
		return accounts.Account{}, false
	}
	return acct, acct.Can(access.CategoryContent, access.ActionReview)
}

func (a *API) listPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := prompts.Filter{AuthorID: strings.TrimSpace(q.Get("author_id"))}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, ok := prompts.ParseStatus(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unsupported status filter")
			return
		}
		filter.Status = status
	}

	acct, canReview := a.reviewer(r)
	if !canReview {
		// Authors may still list their own pending items.
		ownOnly := acct.ID != "" && filter.AuthorID == acct.ID
		if !ownOnly {
			filter.Status = prompts.StatusApproved
		}
	}

	items, err := a.prompts.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getPrompt(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := a.prompts.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if p.Status != prompts.StatusApproved {
		acct, canReview := a.reviewer(r)
		if !canReview && acct.ID != p.AuthorID {
			// Hidden items are indistinguishable from absent ones.
			writeError(w, r, http.StatusNotFound, "not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) submitPrompt(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req prompts.Submission
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.prompts.Submit(r.Context(), identity.AccountID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/prompts/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) uploadPrompts(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	accepted, rejected, err := a.prompts.IngestBatch(r.Context(), identity.AccountID, req.Items)
	if err != nil {
		if len(rejected) > 0 {
			// Fully rejected batch: the per-item reasons still go back.
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "no valid items in batch",
				"rejected": rejected,
			})
			return
		}
		handleServiceError(w, r, err)
		return
	}
	if accepted == nil {
		accepted = []prompts.Prompt{}
	}
	if rejected == nil {
		rejected = []prompts.RejectedPrompt{}
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Accepted: accepted, Rejected: rejected})
}

func (a *API) publishPrompt(w http.ResponseWriter, r *http.Request, id int64) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := a.prompts.Publish(r.Context(), identity.AccountID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) reviewPrompt(w http.ResponseWriter, r *http.Request, id int64) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, ok := prompts.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unsupported target status")
		return
	}
	p, err := a.prompts.Review(r.Context(), identity.AccountID, id, status, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) featurePrompt(w http.ResponseWriter, r *http.Request, id int64) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req featureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.prompts.SetFeatured(r.Context(), identity.AccountID, id, req.Featured)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) likePrompt(w http.ResponseWriter, r *http.Request, id int64, up bool) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var (
		p   prompts.Prompt
		err error
	)
	if up {
		p, err = a.prompts.Like(r.Context(), id)
	} else {
		p, err = a.prompts.Unlike(r.Context(), id)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) editPrompt(w http.ResponseWriter, r *http.Request, id int64) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req prompts.Submission
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.prompts.Edit(r.Context(), identity.AccountID, id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deletePrompt(w http.ResponseWriter, r *http.Request, id int64) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := a.prompts.Delete(r.Context(), identity.AccountID, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
