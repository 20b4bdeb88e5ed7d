// internal/accounting/handler.go
package accounting

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ujjiboni/internal/identity"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the account and transaction endpoints. Account creation,
// lock changes and ledger entries are administrator operations.
func (h *Handler) Routes(authed func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(authed)

	r.Get("/", h.handleListAccounts)
	r.Get("/{id}", h.handleGetAccount)
	r.Get("/{id}/balance", h.handleAccountBalance)
	r.Get("/{id}/summary", h.handleAccountSummary)
	r.Get("/{id}/transactions", h.handleListTransactions)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAdmin)
		r.Post("/", h.handleCreateAccount)
		r.Put("/{id}", h.handleUpdateAccount)
		r.Post("/{id}/lock", h.handleLock(true))
		r.Post("/{id}/unlock", h.handleLock(false))
		r.Post("/{id}/transactions", h.handleRecordTransaction)
	})

	return r
}

func accountErrStatus(err error) int {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := accountErrStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	http.Error(w, msg, status)
}

func accountID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string    `json:"name"`
		AccountHolder uuid.UUID `json:"account_holder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.AccountHolder == uuid.Nil {
		http.Error(w, "name and account holder are required", http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.Name, req.AccountHolder)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(accounts)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(account)
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Name          *string    `json:"name"`
		AccountHolder *uuid.UUID `json:"account_holder"`
		IsLocked      *bool      `json:"is_locked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), id, UpdateAccountInput{
		Name:          req.Name,
		AccountHolder: req.AccountHolder,
		IsLocked:      req.IsLocked,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(account)
}

func (h *Handler) handleLock(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := accountID(r)
		if err != nil {
			http.Error(w, "invalid account ID", http.StatusBadRequest)
			return
		}

		account, err := h.service.SetAccountLock(r.Context(), id, locked)
		if err != nil {
			writeError(w, err)
			return
		}
		json.NewEncoder(w).Encode(account)
	}
}

func (h *Handler) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Type            TransactionType `json:"type"`
		Amount          decimal.Decimal `json:"amount"`
		Comment         string          `json:"comment"`
		TransactionDate time.Time       `json:"transaction_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	entry, err := h.service.RecordTransaction(r.Context(), RecordTransactionInput{
		AccountID:       id,
		Type:            req.Type,
		Amount:          req.Amount,
		Comment:         req.Comment,
		EnteredBy:       actor.ID,
		TransactionDate: req.TransactionDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txType := TransactionType(r.URL.Query().Get("type"))

	entries, total, err := h.service.ListTransactions(r.Context(), id, txType, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	pages := (total + limit - 1) / limit
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": entries,
		"pagination":   map[string]int{"page": page, "limit": limit, "total": total, "pages": pages},
	})
}

func (h *Handler) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	balance, err := h.service.AccountBalance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"account_id": id, "balance": balance})
}

func (h *Handler) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	summary, err := h.service.AccountSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(summary)
}
