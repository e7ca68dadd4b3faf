package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
)

const openOffersLimit = 100

// Decimal amounts cross the wire as strings to avoid float precision loss.

type loanResponse struct {
	ID             string     `json:"id"`
	LenderID       string     `json:"lender_id"`
	BorrowerID     *string    `json:"borrower_id,omitempty"`
	Principal      string     `json:"principal"`
	InterestRate   string     `json:"interest_rate"`
	InterestAmount string     `json:"interest_amount"`
	ProcessingFee  string     `json:"processing_fee"`
	TotalRepayment string     `json:"total_repayment"`
	TermDays       int        `json:"term_days"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	RepaidAt       *time.Time `json:"repaid_at,omitempty"`
}

func toLoanResponse(l *domain.Loan) loanResponse {
	resp := loanResponse{
		ID:             l.ID.String(),
		LenderID:       l.LenderID.String(),
		Principal:      l.Principal.String(),
		InterestRate:   l.InterestRate.String(),
		InterestAmount: l.InterestAmount.String(),
		ProcessingFee:  l.ProcessingFee.String(),
		TotalRepayment: l.TotalRepayment.String(),
		TermDays:       l.TermDays,
		Status:         string(l.Status),
		CreatedAt:      l.CreatedAt,
		AcceptedAt:     l.AcceptedAt,
		DueAt:          l.DueAt,
		RepaidAt:       l.RepaidAt,
	}
	if l.BorrowerID != nil {
		id := l.BorrowerID.String()
		resp.BorrowerID = &id
	}
	return resp
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (s *Server) handlePostOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req struct {
		Principal string `json:"principal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	principal, ok := parseAmount(req.Principal)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid principal format")
		return
	}

	result, err := s.LendingService.PostOffer(r.Context(), userID, principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"loan":        toLoanResponse(result.Loan),
		"fee_charged": result.FeeCharged.String(),
	})
}

func (s *Server) handleTakeOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	loanID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	result, err := s.LendingService.TakeOffer(r.Context(), userID, loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loan":               toLoanResponse(result.Loan),
		"principal_received": result.PrincipalReceived.String(),
		"due_at":             result.DueAt,
	})
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	loanID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	result, err := s.LendingService.CancelOffer(r.Context(), userID, loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loan":     toLoanResponse(result.Loan),
		"refunded": result.Refunded.String(),
	})
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	loanID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	result, err := s.LendingService.RepayLoan(r.Context(), userID, loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loan":           toLoanResponse(result.Loan),
		"amount_repaid":  result.AmountRepaid.String(),
		"repaid_at":      result.RepaidAt,
		"already_repaid": result.AlreadyRepaid,
	})
}

func (s *Server) handleListOpenOffers(w http.ResponseWriter, r *http.Request) {
	loans, err := s.LoanRepo.ListOpenOffers(r.Context(), openOffersLimit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}

	loan, err := s.LoanRepo.GetByID(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loan": toLoanResponse(loan)})
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	wallets, err := s.DashboardService.GetWalletBalances(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type walletResponse struct {
		Kind    string `json:"kind"`
		Balance string `json:"balance"`
		Frozen  string `json:"frozen"`
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, wallet := range wallets {
		out = append(out, walletResponse{
			Kind:    string(wallet.Kind),
			Balance: wallet.Balance.String(),
			Frozen:  wallet.Frozen.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"wallets": out})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	txs, err := s.DashboardService.GetTransactionHistory(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type txResponse struct {
		ID          string    `json:"id"`
		Amount      string    `json:"amount"`
		Type        string    `json:"type"`
		Description string    `json:"description,omitempty"`
		ReferenceID *string   `json:"reference_id,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}
	out := make([]txResponse, 0, len(txs))
	for _, tx := range txs {
		entry := txResponse{
			ID:          tx.ID.String(),
			Amount:      tx.Amount.String(),
			Type:        string(tx.Type),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		}
		if tx.ReferenceID != nil {
			ref := tx.ReferenceID.String()
			entry.ReferenceID = &ref
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": out})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req struct {
		ToUserID    string `json:"to_user_id"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	toUserID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_user_id")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount format")
		return
	}

	result, err := s.TransferService.Transfer(r.Context(), transfer.TransferInput{
		FromUserID:  userID,
		ToUserID:    toUserID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"debit_id":  result.Debit.ID.String(),
		"credit_id": result.Credit.ID.String(),
		"amount":    result.Credit.Amount.String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount format")
		return
	}

	result, err := s.TransferService.Withdraw(r.Context(), userID, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"debit_id": result.Debit.ID.String(),
		"amount":   result.Debit.Amount.Neg().String(),
	})
}

func (s *Server) handleApproveTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	result, err := s.RewardsService.ApproveTask(r.Context(), taskID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":          result.Task.ID.String(),
		"status":           string(result.Task.Status),
		"reward":           result.Reward.String(),
		"commissions_paid": len(result.Commissions),
	})
}

func (s *Server) handlePurchaseMembership(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier := domain.MembershipTier(req.Tier)
	if !tier.Valid() {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}

	result, err := s.RewardsService.PurchaseMembership(r.Context(), userID, tier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":             string(result.Tier),
		"charged":          result.Charged.String(),
		"commissions_paid": len(result.Commissions),
	})
}

func (s *Server) handleRunSettlement(w http.ResponseWriter, r *http.Request) {
	report, err := s.SettlementService.Run(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"repaid":       report.RepaidCount,
		"defaulted":    report.DefaultedCount,
		"failed":       report.FailedCount,
		"total_repaid": report.TotalRepaid.String(),
		"skipped":      report.Skipped,
	})
}

func (s *Server) handleRunYield(w http.ResponseWriter, r *http.Request) {
	report, err := s.YieldService.Run(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets_processed": report.WalletsProcessed,
		"failed":            report.FailedCount,
		"total_credited":    report.TotalCredited.String(),
		"skipped":           report.Skipped,
	})
}
