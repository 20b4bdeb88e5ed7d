// internal/lending/handler.go
package lending

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

// Routes mounts the loan and interest-payment endpoints. Everything
// requires authentication; entry operations additionally require the
// administrator role.
func (h *Handler) Routes(authed func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(authed)

	r.Get("/", h.handleListLoans)
	r.Get("/stats", h.handleLoanStats)
	r.Get("/summary", h.handleLoanSummary)
	r.Get("/member/{memberID}", h.handleMemberLoans)
	r.Get("/{id}", h.handleGetLoan)
	r.Get("/{id}/payments", h.handleListPayments)
	r.Get("/{id}/interest", h.handleListInterestPayments)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAdmin)
		r.Post("/", h.handleCreateLoan)
		r.Put("/{id}", h.handleUpdateLoan)
		r.Post("/{id}/payments", h.handleRecordPayment)
		r.Post("/{id}/interest/generate", h.handleGenerateInterest)
		r.Post("/{id}/interest", h.handleRecordInterestPayment)
	})

	return r
}

// InterestRoutes mounts the cross-loan interest payment views.
func (h *Handler) InterestRoutes(authed func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(authed)

	r.Get("/summary", h.handleInterestSummary)
	r.Get("/member/{memberID}", h.handleMemberInterestPayments)
	r.Get("/{id}", h.handleGetInterestPayment)

	return r
}

// errorStatus maps the domain error taxonomy onto HTTP statuses so every
// rejection names the precondition that failed.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrLoanNotFound),
		errors.Is(err, ErrMemberNotFound),
		errors.Is(err, ErrInterestPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicatePeriod):
		return http.StatusConflict
	case errors.Is(err, ErrLoanNotActive),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidRate),
		errors.Is(err, ErrInvalidLoanType),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidPeriod),
		errors.Is(err, ErrAmountExceedsBalance),
		errors.Is(err, ErrAmountExceedsDue),
		errors.Is(err, ErrNoOutstandingBalance):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	http.Error(w, msg, status)
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return normalizePage(page, limit)
}

func pagination(page, limit, total int) map[string]int {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return map[string]int{"page": page, "limit": limit, "total": total, "pages": pages}
}

func loanID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID            uuid.UUID       `json:"member_id"`
		LoanType            LoanType        `json:"loan_type"`
		PrincipalAmount     decimal.Decimal `json:"principal_amount"`
		MonthlyInterestRate decimal.Decimal `json:"monthly_interest_rate"`
		Notes               string          `json:"notes"`
		DisbursementMonth   string          `json:"disbursement_month"`
		InterestStartMonth  string          `json:"interest_start_month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	loan, err := h.service.CreateLoan(r.Context(), CreateLoanInput{
		MemberID:            req.MemberID,
		LoanType:            req.LoanType,
		PrincipalAmount:     req.PrincipalAmount,
		MonthlyInterestRate: req.MonthlyInterestRate,
		Notes:               req.Notes,
		DisbursementMonth:   req.DisbursementMonth,
		InterestStartMonth:  req.InterestStartMonth,
		EnteredBy:           actor.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   LoanStatus(q.Get("status")),
		LoanType: LoanType(q.Get("loan_type")),
		Search:   q.Get("search"),
	}
	if memberID := q.Get("member_id"); memberID != "" {
		id, err := uuid.Parse(memberID)
		if err != nil {
			http.Error(w, "invalid member ID", http.StatusBadRequest)
			return
		}
		filter.MemberID = id
	}
	filter.Page, filter.Limit = pageParams(r)

	loans, total, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"loans":      loans,
		"pagination": pagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.service.OutstandingBalance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"loan":                loan,
		"outstanding_balance": balance,
	})
}

func (h *Handler) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Notes  *string     `json:"notes"`
		Status *LoanStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := h.service.UpdateLoan(r.Context(), id, UpdateLoanInput{Notes: req.Notes, Status: req.Status})
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleMemberLoans(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	// Members may only see their own loans; admins may see anyone's.
	actor, _ := identity.ActorFromContext(r.Context())
	if !actor.IsAdmin() && actor.ID != memberID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	details, err := h.service.MemberLoans(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"loans": details})
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		PaymentDate time.Time       `json:"payment_date"`
		Amount      decimal.Decimal `json:"amount"`
		Notes       string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	payment, completed, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		LoanID:      id,
		PaymentDate: req.PaymentDate,
		Amount:      req.Amount,
		Notes:       req.Notes,
		EnteredBy:   actor.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"payment":        payment,
		"loan_completed": completed,
	})
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	page, limit := pageParams(r)
	payments, total, err := h.service.ListPayments(r.Context(), id, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"payments":   payments,
		"pagination": pagination(page, limit, total),
	})
}

func (h *Handler) handleGenerateInterest(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	ip, err := h.service.GenerateMonthlyInterest(r.Context(), id, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ip)
}

func (h *Handler) handleRecordInterestPayment(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Period        string          `json:"payment_date"`
		PaidAmount    decimal.Decimal `json:"paid_amount"`
		PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	ip, err := h.service.RecordInterestPayment(r.Context(), RecordInterestInput{
		LoanID:        id,
		Period:        req.Period,
		PaidAmount:    req.PaidAmount,
		PenaltyAmount: req.PenaltyAmount,
		EnteredBy:     actor.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ip)
}

func (h *Handler) handleListInterestPayments(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		http.Error(w, "invalid loan ID", http.StatusBadRequest)
		return
	}

	payments, summary, err := h.service.ListInterestPayments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"interests":       payments,
		"payment_summary": summary,
	})
}

func (h *Handler) handleMemberInterestPayments(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(chi.URLParam(r, "memberID"))
	if err != nil {
		http.Error(w, "invalid member ID", http.StatusBadRequest)
		return
	}

	actor, _ := identity.ActorFromContext(r.Context())
	if !actor.IsAdmin() && actor.ID != memberID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	page, limit := pageParams(r)
	payments, total, err := h.service.MemberInterestPayments(r.Context(), memberID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"payments":   payments,
		"pagination": pagination(page, limit, total),
	})
}

func (h *Handler) handleGetInterestPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid interest payment ID", http.StatusBadRequest)
		return
	}

	ip, err := h.service.GetInterestPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(ip)
}

func (h *Handler) handleInterestSummary(w http.ResponseWriter, r *http.Request) {
	var loan uuid.UUID
	if q := r.URL.Query().Get("loan_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid loan ID", http.StatusBadRequest)
			return
		}
		loan = id
	}

	summary, err := h.service.InterestSummary(r.Context(), loan)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(summary)
}

func (h *Handler) handleLoanSummary(w http.ResponseWriter, r *http.Request) {
	var member uuid.UUID
	if q := r.URL.Query().Get("member_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			http.Error(w, "invalid member ID", http.StatusBadRequest)
			return
		}
		member = id
	}

	summary, err := h.service.LoanSummary(r.Context(), member)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(summary)
}

func (h *Handler) handleLoanStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.LoanStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(stats)
}
