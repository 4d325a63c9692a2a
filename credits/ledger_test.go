package credits

import (
	"sync"
	"testing"
	"time"

	"memoji-backend/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLedger(t *testing.T) (*Ledger, *time.Time) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.UserCredit{}))

	l := NewLedger(db)
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return now }
	return l, &now
}

func TestAllotments(t *testing.T) {
	assert.Equal(t, 2, Allotment(models.TierFree))
	assert.Equal(t, 100, Allotment(models.TierMonthlyBasic))
	assert.Equal(t, 300, Allotment(models.TierMonthlyStandard))
	assert.Equal(t, 1000, Allotment(models.TierMonthlyPro))
	assert.Equal(t, 100, Allotment("monthly"), "legacy alias")
	assert.Equal(t, Unlimited, Allotment(models.TierLifetime))
	assert.Equal(t, 100, Allotment("mystery-tier"), "unknown tiers fall back to basic")
}

func TestNormalizeTier(t *testing.T) {
	assert.Equal(t, models.TierMonthlyBasic, NormalizeTier("monthly"))
	assert.Equal(t, models.TierMonthlyBasic, NormalizeTier("subscription"))
	assert.Equal(t, models.TierMonthlyPro, NormalizeTier(models.TierMonthlyPro))
	assert.Equal(t, models.TierLifetime, NormalizeTier(models.TierLifetime))
	assert.Equal(t, models.TierMonthlyBasic, NormalizeTier("garbage"))
}

func TestGetAccountCreatesWithFullAllotment(t *testing.T) {
	l, _ := testLedger(t)
	acct := l.GetAccount("user-1", models.TierFree)
	assert.Equal(t, 2, acct.CreditsRemaining)
	assert.Equal(t, "2026-05", acct.CurrentMonth)
}

func TestDebitCountsDownToZero(t *testing.T) {
	l, _ := testLedger(t)
	assert.True(t, l.Debit("user-1", models.TierFree))
	assert.True(t, l.Debit("user-1", models.TierFree))
	assert.False(t, l.Debit("user-1", models.TierFree), "third free debit must fail")

	acct := l.GetAccount("user-1", models.TierFree)
	assert.Equal(t, 0, acct.CreditsRemaining)
}

func TestDebitLifetimeNeverFails(t *testing.T) {
	l, _ := testLedger(t)
	for i := 0; i < 50; i++ {
		assert.True(t, l.Debit("vip", models.TierLifetime))
	}
	acct := l.GetAccount("vip", models.TierLifetime)
	assert.Equal(t, Unlimited, acct.CreditsRemaining)
}

func TestMonthRolloverResets(t *testing.T) {
	l, now := testLedger(t)
	require.True(t, l.Debit("user-1", models.TierFree))
	require.True(t, l.Debit("user-1", models.TierFree))
	require.False(t, l.Debit("user-1", models.TierFree))

	*now = time.Date(2026, 6, 1, 0, 0, 1, 0, time.UTC)
	acct := l.GetAccount("user-1", models.TierFree)
	assert.Equal(t, "2026-06", acct.CurrentMonth)
	assert.Equal(t, 2, acct.CreditsRemaining)
	assert.True(t, l.Debit("user-1", models.TierFree))
}

func TestTierChangeResets(t *testing.T) {
	l, _ := testLedger(t)
	require.True(t, l.Debit("user-1", models.TierFree))

	// Upgrade mid-month: balance resets to the new allotment.
	acct := l.GetAccount("user-1", models.TierMonthlyBasic)
	assert.Equal(t, 100, acct.CreditsRemaining)
	assert.Equal(t, models.TierMonthlyBasic, acct.Tier)
}

func TestResetForPeriod(t *testing.T) {
	l, _ := testLedger(t)
	require.True(t, l.Debit("user-1", models.TierMonthlyBasic))
	require.NoError(t, l.ResetForPeriod("user-1", models.TierMonthlyBasic))

	acct := l.GetAccount("user-1", models.TierMonthlyBasic)
	assert.Equal(t, 100, acct.CreditsRemaining)
}

// TestConcurrentDebitsNeverOversell drives more debits than the balance
// holds; exactly balance-many may succeed.
func TestConcurrentDebitsNeverOversell(t *testing.T) {
	l, _ := testLedger(t)
	l.GetAccount("user-1", models.TierFree) // seed 2 credits

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Debit("user-1", models.TierFree)
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 2, granted)

	acct := l.GetAccount("user-1", models.TierFree)
	assert.Equal(t, 0, acct.CreditsRemaining)
}
