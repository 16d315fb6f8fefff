package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBalanceIsValid(t *testing.T) {
	require.NoError(t, defaultBalance().validate())
}

func TestLoadBalanceWithoutOverride(t *testing.T) {
	t.Setenv("TULIP_BALANCE_PATH", "")
	bal, err := loadBalanceFromEnv()
	require.NoError(t, err)
	assert.Equal(t, defaultBalance(), bal)
}

func TestLoadBalanceYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	raw := "winning_coins: 2000\ncrash_day: 25\ntick_every: 2s\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	t.Setenv("TULIP_BALANCE_PATH", path)

	bal, err := loadBalanceFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2000, bal.WinningCoins)
	assert.Equal(t, 25, bal.CrashDay)
	assert.Equal(t, "2s", bal.TickEvery.String())
	// Untouched fields keep their defaults.
	assert.Equal(t, 1000, bal.InitialCoins)
	assert.Equal(t, 0.08, bal.DailyDecay)
}

func TestLoadBalanceRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("winning_coins: [nope"), 0o644))
	t.Setenv("TULIP_BALANCE_PATH", path)

	_, err := loadBalanceFromEnv()
	assert.Error(t, err)
}

func TestLoadBalanceRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_price: 0\n"), 0o644))
	t.Setenv("TULIP_BALANCE_PATH", path)

	_, err := loadBalanceFromEnv()
	assert.Error(t, err)
}

func TestValidateCatchesBadRanges(t *testing.T) {
	bal := defaultBalance()
	bal.DailyDecay = 1.5
	assert.Error(t, bal.validate())

	bal = defaultBalance()
	bal.EarlyCrashStartDay = 40
	assert.Error(t, bal.validate())

	bal = defaultBalance()
	bal.PlotCount = 0
	assert.Error(t, bal.validate())
}
