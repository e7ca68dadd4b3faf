//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lendflow-backend/internal/adapter/httpapi"
	"github.com/simaogato/lendflow-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/lendflow-backend/internal/usecase/lending"
	"github.com/simaogato/lendflow-backend/internal/usecase/ratelimit"
	"github.com/simaogato/lendflow-backend/internal/usecase/rewards"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
	"github.com/simaogato/lendflow-backend/internal/usecase/settlement"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
	"github.com/simaogato/lendflow-backend/internal/usecase/yield"
)

const (
	apiToken  = "integration-token"
	jobSecret = "integration-job-secret"
)

var (
	db      *postgres.DB
	store   *postgres.Store
	baseURL string
)

// TestMain connects to the database, applies the schema, and serves the full
// API stack over a test listener.
func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	db, err = postgres.NewDB(getDBConnectionString())
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()

	if err := postgres.ApplySchema(ctx, db); err != nil {
		panic(fmt.Sprintf("Failed to apply schema: %v", err))
	}

	store = postgres.NewStore(db, 2*time.Second)
	walletRepo := postgres.NewWalletRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	loanRepo := postgres.NewLoanRepository(db)

	if err := seeder.NewSystemSeeder(store).Seed(ctx); err != nil {
		panic(fmt.Sprintf("Failed to seed system user: %v", err))
	}

	limiter := ratelimit.NewLimiter(transactionRepo, 100, time.Hour)
	api := &httpapi.Server{
		LendingService:    lending.NewService(store, limiter, lending.DefaultConfig()),
		TransferService:   transfer.NewService(store),
		RewardsService:    rewards.NewService(store, rewards.DefaultConfig()),
		DashboardService:  dashboard.NewDashboardService(walletRepo, transactionRepo),
		SettlementService: settlement.NewService(store, loanRepo, zerolog.Nop()),
		YieldService:      yield.NewService(store, walletRepo, yield.DefaultConfig(), zerolog.Nop()),
		LoanRepo:          loanRepo,
		APIToken:          apiToken,
		JobSecret:         jobSecret,
		Log:               zerolog.Nop(),
	}

	server := httptest.NewServer(api.Router())
	defer server.Close()
	baseURL = server.URL

	os.Exit(m.Run())
}

func getDBConnectionString() string {
	if conn := os.Getenv("DB_CONN_STR"); conn != "" {
		return conn
	}
	return "host=localhost port=5432 user=postgres password=postgres dbname=lendflow_test sslmode=disable"
}

// createUser inserts a user directly and credits their main wallet.
func createUser(t *testing.T, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := tx.EnsureUser(ctx, &domain.User{
			ID:       id,
			Username: "it-" + id.String()[:8],
			Tier:     domain.TierBasic,
		}); err != nil {
			return err
		}
		w, err := tx.WalletForUpdate(ctx, id, domain.WalletKindMain)
		if err != nil {
			return err
		}

		amount, err := decimal.NewFromString(balance)
		if err != nil {
			return err
		}
		w.Balance = amount
		return tx.UpdateWallet(ctx, w)
	})
	require.NoError(t, err)
	return id
}

func call(t *testing.T, method, path string, userID uuid.UUID, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("X-User-ID", userID.String())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp.StatusCode, payload
}

func TestLoanLifecycleEndToEnd(t *testing.T) {
	lender := createUser(t, "5000")
	borrower := createUser(t, "100")

	// Post: lender escrows 1,000 and pays the 10 entry fee
	status, payload := call(t, http.MethodPost, "/v1/loans", lender,
		map[string]string{"principal": "1000"})
	require.Equal(t, http.StatusCreated, status)
	loanID := payload["loan"].(map[string]interface{})["id"].(string)

	status, payload = call(t, http.MethodGet, "/v1/wallets", lender, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "3990", mainBalance(payload))

	// Accept: borrower receives the principal
	status, _ = call(t, http.MethodPost, "/v1/loans/"+loanID+"/accept", borrower, nil)
	require.Equal(t, http.StatusOK, status)

	status, payload = call(t, http.MethodGet, "/v1/wallets", borrower, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1100", mainBalance(payload))

	// Repay: full amount back to the lender, loan terminal
	status, payload = call(t, http.MethodPost, "/v1/loans/"+loanID+"/repay", borrower, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1030", payload["amount_repaid"])

	status, payload = call(t, http.MethodGet, "/v1/loans/"+loanID, lender, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "REPAID", payload["loan"].(map[string]interface{})["status"])

	// Retry is idempotent
	status, payload = call(t, http.MethodPost, "/v1/loans/"+loanID+"/repay", borrower, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, payload["already_repaid"])
}

func TestTransferAndHistoryEndToEnd(t *testing.T) {
	alice := createUser(t, "800")
	bob := createUser(t, "0")

	status, _ := call(t, http.MethodPost, "/v1/transfers", alice, map[string]string{
		"to_user_id": bob.String(),
		"amount":     "300",
	})
	require.Equal(t, http.StatusOK, status)

	status, payload := call(t, http.MethodGet, "/v1/wallets", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "300", mainBalance(payload))

	status, payload = call(t, http.MethodGet, "/v1/transactions?limit=5", alice, nil)
	require.Equal(t, http.StatusOK, status)
	txs := payload["transactions"].([]interface{})
	require.NotEmpty(t, txs)
	assert.Equal(t, "-300", txs[0].(map[string]interface{})["amount"])

	// Over-spending is rejected and moves nothing
	status, _ = call(t, http.MethodPost, "/v1/transfers", alice, map[string]string{
		"to_user_id": bob.String(),
		"amount":     "10000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestSettlementJobEndToEnd(t *testing.T) {
	ctx := context.Background()
	lender := createUser(t, "2000")
	borrower := createUser(t, "2000")

	status, payload := call(t, http.MethodPost, "/v1/loans", lender,
		map[string]string{"principal": "1000"})
	require.Equal(t, http.StatusCreated, status)
	loanID := uuid.MustParse(payload["loan"].(map[string]interface{})["id"].(string))

	status, _ = call(t, http.MethodPost, "/v1/loans/"+loanID.String()+"/accept", borrower, nil)
	require.Equal(t, http.StatusOK, status)

	// Backdate the due date so the loan is overdue
	_, err := db.ExecContext(ctx, "UPDATE loans SET due_at = NOW() - INTERVAL '1 day' WHERE id = $1", loanID)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/jobs/settlement", nil)
	require.NoError(t, err)
	req.Header.Set("X-Job-Secret", jobSecret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, payload = call(t, http.MethodGet, "/v1/loans/"+loanID.String(), lender, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "REPAID", payload["loan"].(map[string]interface{})["status"])
}

func mainBalance(payload map[string]interface{}) string {
	for _, raw := range payload["wallets"].([]interface{}) {
		w := raw.(map[string]interface{})
		if w["kind"] == "MAIN" {
			return w["balance"].(string)
		}
	}
	return ""
}
