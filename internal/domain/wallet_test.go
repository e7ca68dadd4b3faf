package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWallet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		wallet  Wallet
		wantErr bool
		errMsg  string
	}{
		{
			name: "Main wallet with positive balance should pass",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKindMain,
				Balance: decimal.NewFromInt(100),
				Frozen:  decimal.Zero,
			},
			wantErr: false,
		},
		{
			name: "Unknown kind should fail",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKind("SAVINGS"),
				Balance: decimal.Zero,
			},
			wantErr: true,
			errMsg:  "wallet kind must be MAIN, TASK, ROYALTY, or VAULT",
		},
		{
			name: "Negative balance should fail",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKindMain,
				Balance: decimal.NewFromInt(-1),
			},
			wantErr: true,
			errMsg:  "wallet balance cannot be negative",
		},
		{
			name: "Vault wallet with frozen collateral should pass",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKindVault,
				Balance: decimal.NewFromInt(5000),
				Frozen:  decimal.NewFromInt(2000),
			},
			wantErr: false,
		},
		{
			name: "Frozen exceeding balance should fail",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKindVault,
				Balance: decimal.NewFromInt(100),
				Frozen:  decimal.NewFromInt(200),
			},
			wantErr: true,
			errMsg:  "wallet frozen amount cannot exceed balance",
		},
		{
			name: "Frozen funds on a non-vault wallet should fail",
			wallet: Wallet{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Kind:    WalletKindMain,
				Balance: decimal.NewFromInt(100),
				Frozen:  decimal.NewFromInt(10),
			},
			wantErr: true,
			errMsg:  "only vault wallets can have frozen funds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wallet.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.errMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWallet_Spendable(t *testing.T) {
	w := Wallet{
		Kind:    WalletKindVault,
		Balance: decimal.NewFromInt(5000),
		Frozen:  decimal.NewFromInt(1500),
	}

	assert.True(t, w.Spendable().Equal(decimal.NewFromInt(3500)))
}
