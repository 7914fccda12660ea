package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/fjod/storefront-cart/internal/domain"
)

// Handler serves the cart API the storefront's remote client talks to.
type Handler struct {
	repo    Repository
	catalog *Catalog
	issuer  *TokenIssuer
	log     logrus.FieldLogger
}

func NewHandler(repo Repository, catalog *Catalog, issuer *TokenIssuer, log logrus.FieldLogger) *Handler {
	return &Handler{repo: repo, catalog: catalog, issuer: issuer, log: log}
}

type signInRequest struct {
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
}

type signInResponse struct {
	Token    string `json:"token"`
	MemberID string `json:"memberId"`
}

type addRequest struct {
	MemberID  string           `json:"memberId"`
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type updateRequest struct {
	ID        string           `json:"id"`
	MemberID  string           `json:"memberId"`
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
}

type lineResponse struct {
	ID        string           `json:"id"`
	MemberID  string           `json:"memberId"`
	ProductID domain.ProductID `json:"productId"`
	Qty       int              `json:"qty"`
	Product   domain.Product   `json:"product"`
}

// Routes mounts the API. Everything except sign-in requires a bearer token.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/member/sign-in", h.SignIn)

		r.Group(func(r chi.Router) {
			r.Use(h.issuer.AuthMiddleware)
			r.Get("/member/info", h.MemberInfo)
			r.Get("/cart/list/{memberId}", h.ListLines)
			r.Post("/cart/add", h.AddLine)
			r.Put("/cart/update", h.UpdateLine)
			r.Delete("/cart/remove/{id}", h.RemoveLine)
		})
	})
	return r
}

// SignIn issues a token for any member id. Development only.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		respondError(w, http.StatusBadRequest, "memberId is required")
		return
	}
	token, err := h.issuer.Issue(memberID, req.Name)
	if err != nil {
		h.log.WithError(err).Error("failed to issue token")
		respondError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	respondJSON(w, http.StatusOK, signInResponse{Token: token, MemberID: memberID})
}

func (h *Handler) MemberInfo(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	respondJSON(w, http.StatusOK, domain.Member{ID: claims.Subject, Name: claims.Name})
}

func (h *Handler) ListLines(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	if !h.owns(r.Context(), memberID) {
		respondError(w, http.StatusForbidden, ErrForbidden.Error())
		return
	}
	records, err := h.repo.ListLines(r.Context(), memberID)
	if err != nil {
		h.handleRepoError(w, r, err)
		return
	}
	out := make([]lineResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, h.toResponse(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MemberID == "" {
		req.MemberID = claimsFromContext(r.Context()).Subject
	}
	if !h.owns(r.Context(), req.MemberID) {
		respondError(w, http.StatusForbidden, ErrForbidden.Error())
		return
	}
	if req.ProductID.IsZero() {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Qty <= 0 {
		respondError(w, http.StatusBadRequest, ErrInvalidQty.Error())
		return
	}
	if _, ok := h.catalog.Lookup(req.ProductID); !ok {
		respondError(w, http.StatusNotFound, "product not found")
		return
	}

	rec, err := h.repo.AddOrMerge(r.Context(), req.MemberID, req.ProductID.String(), req.Qty)
	if err != nil {
		h.handleRepoError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.toResponse(rec))
}

func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Qty <= 0 {
		respondError(w, http.StatusBadRequest, ErrInvalidQty.Error())
		return
	}
	rec, ok := h.ownedLine(w, r, req.ID)
	if !ok {
		return
	}
	if !req.ProductID.IsZero() && req.ProductID.String() != rec.ProductID {
		respondError(w, http.StatusBadRequest, "productId does not match line")
		return
	}

	if err := h.repo.UpdateQty(r.Context(), rec.ID, req.Qty); err != nil {
		h.handleRepoError(w, r, err)
		return
	}
	rec.Qty = req.Qty
	respondJSON(w, http.StatusOK, h.toResponse(rec))
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedLine(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.repo.DeleteLine(r.Context(), rec.ID); err != nil {
		h.handleRepoError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownedLine(w http.ResponseWriter, r *http.Request, id string) (LineRecord, bool) {
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return LineRecord{}, false
	}
	rec, err := h.repo.GetLine(r.Context(), id)
	if err != nil {
		h.handleRepoError(w, r, err)
		return LineRecord{}, false
	}
	if !h.owns(r.Context(), rec.MemberID) {
		respondError(w, http.StatusForbidden, ErrForbidden.Error())
		return LineRecord{}, false
	}
	return rec, true
}

func (h *Handler) owns(ctx context.Context, memberID string) bool {
	claims := claimsFromContext(ctx)
	return claims != nil && memberID != "" && claims.Subject == memberID
}

func (h *Handler) toResponse(rec LineRecord) lineResponse {
	pid := domain.NormalizeProductID(rec.ProductID)
	product, ok := h.catalog.Lookup(pid)
	if !ok {
		// dropped from the catalog after it was added
		product = domain.Product{ID: pid, Name: pid.String()}
	}
	return lineResponse{
		ID:        rec.ID,
		MemberID:  rec.MemberID,
		ProductID: pid,
		Qty:       rec.Qty,
		Product:   product,
	}
}

func (h *Handler) handleRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrLineNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidQty):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).WithContext(r.Context()).Error("repository failure")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
