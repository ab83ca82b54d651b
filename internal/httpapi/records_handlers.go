package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/records"
)

func (a *API) recordRoutes() {
	a.mux.HandleFunc("POST /api/clients", a.operators(a.createClient, 0))
	a.mux.HandleFunc("GET /api/clients/{clientId}", a.anyRole(a.getClient))
	a.mux.HandleFunc("POST /api/storage/locations", a.operators(a.createLocation, 0))

	a.mux.HandleFunc("POST /api/boxes", a.operators(a.createBox, auth.PermCreateBoxes))
	a.mux.HandleFunc("GET /api/boxes/{boxId}", a.anyRole(a.getBox))
	a.mux.HandleFunc("PATCH /api/boxes/{boxId}/status", a.operators(a.setBoxStatus, auth.PermEditBoxes))

	a.mux.HandleFunc("GET /api/retrievals", a.anyRole(a.listRetrievals))
	a.mux.HandleFunc("GET /api/retrievals/pending", a.operators(a.pendingRetrievals, 0))
	a.mux.HandleFunc("GET /api/retrievals/pending/my", a.protect(a.pendingRetrievals, []auth.Role{auth.RoleClient}, 0))
	a.mux.HandleFunc("POST /api/retrievals", a.operators(a.createRetrieval, auth.PermCreateRetrievals))
	a.mux.HandleFunc("GET /api/retrievals/{retrievalId}", a.anyRole(a.getRetrieval))
	a.mux.HandleFunc("PATCH /api/retrievals/{retrievalId}/signatures", a.anyRole(a.signRetrieval))
	a.mux.HandleFunc("PATCH /api/retrievals/{retrievalId}/pdf", a.operators(a.attachArtifact, 0))
	a.mux.HandleFunc("PATCH /api/retrievals/box/{boxId}/mark-retrieved", a.operators(a.markRetrieved, 0))
	a.mux.HandleFunc("DELETE /api/retrievals/{retrievalId}", a.adminOnly(a.deleteRetrieval))
}

// parseBodyDate reads an optional date field. Empty stays zero.
func parseBodyDate(raw, name string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	t, err := records.ParseDate(raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

// --- clients and locations ---

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"client_code"`
		Name string `json:"client_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	c, err := a.engine.CreateClient(r.Context(), actor(r), records.NewClient{Code: req.Code, Name: req.Name})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientId")
	if err := auth.CheckTenant(identity(r), auth.TenantHint{Path: clientID}); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.engine.GetClient(r.Context(), clientID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) createLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	l, err := a.engine.CreateStorageLocation(r.Context(), actor(r), req.Label)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// --- boxes ---

type createBoxRequest struct {
	ClientID       string `json:"client_id"`
	LocationID     string `json:"location_id"`
	BoxIndex       string `json:"box_index"`
	Description    string `json:"box_description"`
	DateReceived   string `json:"date_received"`
	RetentionYears int    `json:"retention_years"`
}

func (a *API) createBox(w http.ResponseWriter, r *http.Request) {
	var req createBoxRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	received, err := parseBodyDate(req.DateReceived, "date_received")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	b, err := a.engine.CreateBox(r.Context(), actor(r), records.NewBox{
		ClientID:       req.ClientID,
		LocationID:     req.LocationID,
		Index:          req.BoxIndex,
		Description:    req.Description,
		DateReceived:   received,
		RetentionYears: req.RetentionYears,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) getBox(w http.ResponseWriter, r *http.Request) {
	b, err := a.engine.GetBox(r.Context(), actor(r), r.PathValue("boxId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) setBoxStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	status, err := records.ParseBoxStatus(req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ch, err := a.engine.SetBoxStatus(r.Context(), actor(r), r.PathValue("boxId"), status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// --- retrievals ---

func (a *API) listRetrievals(w http.ResponseWriter, r *http.Request) {
	a.serveRetrievals(w, r, false)
}

// pendingRetrievals lists retrievals still waiting for the client signature.
// Client callers only ever see their own tenant.
func (a *API) pendingRetrievals(w http.ResponseWriter, r *http.Request) {
	a.serveRetrievals(w, r, true)
}

func (a *API) serveRetrievals(w http.ResponseWriter, r *http.Request, pendingOnly bool) {
	q, err := records.ParseRetrievalQuery(r.URL.Query())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if pendingOnly {
		q.AwaitingClientSignature = true
	}
	id := identity(r)
	hint := auth.TenantHint{Query: q.ClientID}
	if hint.Query == "" && id.Role == auth.RoleClient {
		hint.Query = id.ClientID
	}
	if err := auth.CheckTenant(id, hint); err != nil {
		a.fail(w, r, err)
		return
	}
	page, err := a.engine.ListRetrievals(r.Context(), actor(r), q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type createRetrievalRequest struct {
	ClientID       string `json:"client_id"`
	BoxID          string `json:"box_id"`
	RetrievalDate  string `json:"retrieval_date"`
	RetrievedBy    string `json:"retrieved_by"`
	Reason         string `json:"reason"`
	StaffSignature string `json:"staff_signature"`
}

func (a *API) createRetrieval(w http.ResponseWriter, r *http.Request) {
	var req createRetrievalRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := auth.CheckTenant(identity(r), auth.TenantHint{Body: req.ClientID}); err != nil {
		a.fail(w, r, err)
		return
	}
	date, err := parseBodyDate(req.RetrievalDate, "retrieval_date")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	ret, err := a.engine.CreateRetrieval(r.Context(), actor(r), records.NewRetrieval{
		ClientID:       req.ClientID,
		BoxID:          req.BoxID,
		RetrievalDate:  date,
		RetrievedBy:    req.RetrievedBy,
		Reason:         req.Reason,
		StaffSignature: req.StaffSignature,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

func (a *API) getRetrieval(w http.ResponseWriter, r *http.Request) {
	ret, err := a.engine.GetRetrieval(r.Context(), actor(r), r.PathValue("retrievalId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (a *API) signRetrieval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffSignature  *string `json:"staff_signature"`
		ClientSignature *string `json:"client_signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	res, err := a.engine.SignRetrieval(r.Context(), actor(r), r.PathValue("retrievalId"), records.Signatures{
		Staff:  req.StaffSignature,
		Client: req.ClientSignature,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) attachArtifact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PDFPath string `json:"pdf_path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	id := r.PathValue("retrievalId")
	if err := a.engine.AttachArtifact(r.Context(), actor(r), id, req.PDFPath); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"retrieval_id": id, "pdf_path": strings.TrimSpace(req.PDFPath)})
}

func (a *API) markRetrieved(w http.ResponseWriter, r *http.Request) {
	ch, err := a.engine.MarkBoxRetrieved(r.Context(), actor(r), r.PathValue("boxId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) deleteRetrieval(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.DeleteRetrieval(r.Context(), actor(r), r.PathValue("retrievalId")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
