package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/domain"
	"github.com/punchamoorthee/cardledger/internal/models"
	"github.com/punchamoorthee/cardledger/internal/service"
)

type Handler struct {
	transfers service.Transferer
	accounts  *service.AccountService
	reports   *service.ReportService
	logger    *logrus.Logger
}

func NewHandler(transfers service.Transferer, accounts *service.AccountService, reports *service.ReportService, logger *logrus.Logger) *Handler {
	return &Handler{transfers: transfers, accounts: accounts, reports: reports, logger: logger}
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var amount decimal.Decimal
	if req.Amount != nil {
		amount = *req.Amount
	}

	txn, err := h.transfers.Transfer(r.Context(), domain.TransferRequest{
		ActorID:       actor.UserID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, models.TransferResponse{Transaction: models.NewTransaction(txn)})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFrom(r.Context())

	acc, err := h.accounts.GetAccount(r.Context(), actor.UserID, id, actor.IsAdmin())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccount(acc))
}

// ListOwnAccounts serves the caller's accounts; ?active=true keeps only
// those usable for transfers.
func (h *Handler) ListOwnAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	activeOnly, err := queryBool(r, "active")
	if err != nil {
		respondError(w, http.StatusBadRequest, "active must be true or false")
		return
	}
	actor, _ := ActorFrom(r.Context())

	accounts, err := h.accounts.ListOwnAccounts(r.Context(), actor.UserID, activeOnly, limit, offset)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccounts(accounts))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFrom(r.Context())

	txns, err := h.accounts.ListTransactions(r.Context(), actor.UserID, id, actor.IsAdmin())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewTransactions(txns))
}

func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	actor, _ := ActorFrom(r.Context())

	acc, err := h.accounts.RequestBlock(r.Context(), actor.UserID, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, models.NewAccount(acc))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	expiry, err := time.Parse(time.DateOnly, req.ExpiryDate)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "expiry_date must be YYYY-MM-DD")
		return
	}
	balance := decimal.Zero
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}

	acc, err := h.accounts.CreateAccount(r.Context(), req.OwnerID, expiry, balance)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, models.NewAccount(acc))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	acc, err := h.accounts.UpdateStatus(r.Context(), id, domain.AccountStatus(req.Status))
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccount(acc))
}

func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req models.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	var amount decimal.Decimal
	if req.Amount != nil {
		amount = *req.Amount
	}

	acc, err := h.accounts.Credit(r.Context(), id, amount)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccount(acc))
}

func (h *Handler) ListBlockRequests(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListBlockRequests(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccounts(accounts))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	var ownerID int64
	if v := r.URL.Query().Get("owner_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid owner id")
			return
		}
		ownerID = id
	}

	accounts, err := h.accounts.ListAccounts(r.Context(), ownerID, limit, offset)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewAccounts(accounts))
}

func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	report, err := h.reports.DailyReport(r.Context(), day)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewDailyReport(report))
}

func (h *Handler) MyStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	stats, err := h.reports.UserStats(r.Context(), actor.UserID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, models.NewUserStats(stats))
}

// Helpers

// pageParams reads limit and offset. Missing values are left at zero for the
// service to default.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &limit, "offset": &offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid "+name)
			return 0, 0, false
		}
		*dst = n
	}
	return limit, offset, true
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid account id")
		return 0, false
	}
	return id, true
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidArgument, domain.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindBusy, domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.logger.WithError(err).Error("unclassified error")
		respondError(w, http.StatusInternalServerError, domain.KindUnknown.PublicMessage())
		return
	}
	if de.Kind == domain.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, StatusFor(de.Kind), models.ErrorResponse{Error: de.Kind.PublicMessage(), Kind: de.Kind.String()})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, models.ErrorResponse{Error: msg})
}
