package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/lendflow-backend/internal/usecase/lending"
	"github.com/simaogato/lendflow-backend/internal/usecase/rewards"
	"github.com/simaogato/lendflow-backend/internal/usecase/settlement"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
	"github.com/simaogato/lendflow-backend/internal/usecase/yield"
)

// Server wires the usecase services to the REST surface
type Server struct {
	LendingService    *lending.Service
	TransferService   *transfer.Service
	RewardsService    *rewards.Service
	DashboardService  *dashboard.DashboardService
	SettlementService *settlement.Service
	YieldService      *yield.Service
	LoanRepo          domain.LoanRepository

	APIToken  string
	JobSecret string
	Log       zerolog.Logger
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.Log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// User-facing API
	r.Group(func(r chi.Router) {
		r.Use(Auth(s.APIToken))

		r.Post("/v1/loans", s.handlePostOffer)
		r.Get("/v1/loans/open", s.handleListOpenOffers)
		r.Get("/v1/loans/{id}", s.handleGetLoan)
		r.Post("/v1/loans/{id}/accept", s.handleTakeOffer)
		r.Post("/v1/loans/{id}/cancel", s.handleCancelOffer)
		r.Post("/v1/loans/{id}/repay", s.handleRepayLoan)

		r.Get("/v1/wallets", s.handleListWallets)
		r.Get("/v1/transactions", s.handleListTransactions)
		r.Post("/v1/transfers", s.handleTransfer)
		r.Post("/v1/withdrawals", s.handleWithdraw)

		r.Post("/v1/tasks/{id}/approve", s.handleApproveTask)
		r.Post("/v1/memberships", s.handlePurchaseMembership)
	})

	// Scheduler triggers, guarded by the job secret
	r.Group(func(r chi.Router) {
		r.Use(JobAuth(s.JobSecret))

		r.Post("/v1/jobs/settlement", s.handleRunSettlement)
		r.Post("/v1/jobs/yield", s.handleRunYield)
	})

	return r
}
