package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/auth"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	service "github.com/honeynil/JobEscrowService/internal/services"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handler struct {
	service service.MarketplaceService
}

func NewHandler(s service.MarketplaceService) *Handler {
	return &Handler{service: s}
}

type errorResponse struct {
	Error     string           `json:"error"`
	Kind      pkgerrors.Kind   `json:"kind"`
	Required  *decimal.Decimal `json:"required,omitempty"`
	Current   *decimal.Decimal `json:"current,omitempty"`
	Shortfall *decimal.Decimal `json:"shortfall,omitempty"`
}

var statusByKind = map[pkgerrors.Kind]int{
	pkgerrors.KindValidation:        http.StatusBadRequest,
	pkgerrors.KindNotFound:          http.StatusNotFound,
	pkgerrors.KindForbidden:         http.StatusForbidden,
	pkgerrors.KindInvalidState:      http.StatusConflict,
	pkgerrors.KindConflict:          http.StatusConflict,
	pkgerrors.KindInsufficientFunds: http.StatusPaymentRequired,
}

// StatusFor maps an error to the HTTP status the API reports for it.
func StatusFor(err error) int {
	if status, ok := statusByKind[pkgerrors.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := pkgerrors.KindOf(err)
	status := StatusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}
	if status == http.StatusInternalServerError {
		// driver and broker details stay in the logs
		resp.Error = "internal error"
	}

	var insufficient *pkgerrors.InsufficientFundsError
	if errors.As(err, &insufficient) {
		shortfall := insufficient.Shortfall()
		resp.Required, resp.Current, resp.Shortfall = &insufficient.Required, &insufficient.Current, &shortfall
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/users/me", h.RegisterUser).Methods("POST")

	r.HandleFunc("/jobs", h.PlaceJob).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.CancelJob).Methods("DELETE")
	r.HandleFunc("/jobs/{id}/bids", h.ListBids).Methods("GET")
	r.HandleFunc("/jobs/{id}/bids", h.PlaceBid).Methods("POST")
	r.HandleFunc("/bids/{id}/accept", h.AcceptBid).Methods("PATCH")
	r.HandleFunc("/jobs/{id}/submit", h.SubmitWork).Methods("PATCH")
	r.HandleFunc("/jobs/{id}/approve", h.ApproveWork).Methods("PATCH")
	r.HandleFunc("/jobs/{id}/reject", h.RejectWork).Methods("PATCH")
	r.HandleFunc("/jobs/{id}/transactions", h.ListJobTransactions).Methods("GET")
	r.HandleFunc("/jobs/{id}/chat/{userId}", h.CanChat).Methods("GET")

	r.HandleFunc("/wallet/fund", h.FundWallet).Methods("POST")
	r.HandleFunc("/wallet/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/wallet/transactions", h.ListTransactions).Methods("GET")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) (models.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return models.Principal{}, fmt.Errorf("%w: caller is not authenticated", pkgerrors.ErrForbidden)
	}
	return p, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", pkgerrors.ErrValidation, name)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", pkgerrors.ErrValidation, err)
	}
	return nil
}

// withJob resolves the caller and the {id} path variable before calling fn.
func (h *Handler) withJob(w http.ResponseWriter, r *http.Request, fn func(p models.Principal, jobID uuid.UUID)) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jobID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	fn(p, jobID)
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.RegisterUser(r.Context(), p, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) PlaceJob(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Category    models.Category `json:"category"`
		Budget      decimal.Decimal `json:"budget"`
		Location    string          `json:"location"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	job, err := h.service.PlaceJob(r.Context(), p, service.PlaceJobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Budget:      req.Budget,
		Location:    req.Location,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	q := r.URL.Query()
	jobs, err := h.service.ListJobs(r.Context(), p, service.JobQuery{
		Status:   models.JobStatus(q.Get("status")),
		Category: models.Category(q.Get("category")),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		job, err := h.service.GetJob(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, job)
	})
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		job, err := h.service.CancelJob(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, job)
	})
}

func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		bids, err := h.service.ListBids(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, bids)
	})
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		var req struct {
			Amount   decimal.Decimal `json:"amount"`
			Proposal string          `json:"proposal"`
		}
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		bid, err := h.service.PlaceBid(r.Context(), p, jobID, req.Amount, req.Proposal)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, bid)
	})
}

func (h *Handler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	bidID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.service.AcceptBid(r.Context(), p, bidID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		var req struct {
			FileURL  string `json:"file_url"`
			FileName string `json:"file_name"`
		}
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		job, err := h.service.SubmitWork(r.Context(), p, jobID, models.WorkSubmission{FileURL: req.FileURL, FileName: req.FileName})
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, job)
	})
}

func (h *Handler) ApproveWork(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		res, err := h.service.ApproveWork(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, res)
	})
}

func (h *Handler) RejectWork(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		job, err := h.service.RejectWork(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, job)
	})
}

func (h *Handler) ListJobTransactions(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		txs, err := h.service.ListJobTransactions(r.Context(), p, jobID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, txs)
	})
}

func (h *Handler) CanChat(w http.ResponseWriter, r *http.Request) {
	h.withJob(w, r, func(p models.Principal, jobID uuid.UUID) {
		other, err := pathID(r, "userId")
		if err != nil {
			h.writeError(w, err)
			return
		}
		ok, err := h.service.CanChat(r.Context(), jobID, p.UserID, other)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]bool{"can_chat": ok})
	})
}

func (h *Handler) FundWallet(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.service.FundWallet(r.Context(), p, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	balance, err := h.service.GetBalance(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"wallet_balance": balance.StringFixed(2)})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	filter := repository.TransactionFilter{Type: models.TransactionType(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeError(w, fmt.Errorf("%w: limit must be a positive integer", pkgerrors.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	txs, err := h.service.ListTransactions(r.Context(), p.UserID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}
