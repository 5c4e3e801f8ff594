package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"vaultbank.com/internal/ledger/domain"
)

func TestTransaction_RollbackRestoresEverything(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateAsset(ctx, &domain.Asset{ID: "0xaa", TotalBalance: decimal.Zero}))
	require.NoError(t, s.AddUserBalance(ctx, "u1", "0xaa", decimal.NewFromInt(100)))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.AddUserBalance(txCtx, "u1", "0xaa", decimal.NewFromInt(50)))
		a, err := s.GetAsset(txCtx, "0xaa")
		require.NoError(t, err)
		a.TotalBalance = decimal.NewFromInt(150)
		require.NoError(t, s.SaveAsset(txCtx, a))
		require.NoError(t, s.CreateWithdrawRecord(txCtx, &domain.WithdrawRecord{UserID: "u1", AssetID: "0xaa", Amount: decimal.NewFromInt(1)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := s.GetUserBalance(ctx, "u1", "0xaa")
	require.NoError(t, err)
	require.True(t, bal.Amount.Equal(decimal.NewFromInt(100)))

	a, err := s.GetAsset(ctx, "0xaa")
	require.NoError(t, err)
	require.True(t, a.TotalBalance.IsZero())
	require.Equal(t, int64(0), a.Version)

	records, err := s.ListWithdrawRecords(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Empty(t, records)
}

// 失败事务的回滚不能吞掉其他事务的提交：
// 事务之间串行，回滚只还原自己触碰过的键
func TestTransaction_RollbackKeepsOtherCommits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	inA := make(chan struct{})
	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		_ = s.Transaction(ctx, func(txCtx context.Context) error {
			_ = s.AddUserBalance(txCtx, "u1", "0xaa", decimal.NewFromInt(10))
			close(inA)
			// 给并发事务留出插队的窗口再失败
			time.Sleep(50 * time.Millisecond)
			return errors.New("boom")
		})
	}()

	<-inA
	err := s.Transaction(ctx, func(txCtx context.Context) error {
		return s.AddUserBalance(txCtx, "u2", "0xbb", decimal.NewFromInt(20))
	})
	require.NoError(t, err)
	<-doneA

	balB, err := s.GetUserBalance(ctx, "u2", "0xbb")
	require.NoError(t, err)
	require.True(t, balB.Amount.Equal(decimal.NewFromInt(20)))

	balA, err := s.GetUserBalance(ctx, "u1", "0xaa")
	require.NoError(t, err)
	require.True(t, balA.Amount.IsZero())
}

func TestTransaction_CommitKeepsWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.Transaction(ctx, func(txCtx context.Context) error {
		return s.AddUserBalance(txCtx, "u1", "0xaa", decimal.NewFromInt(7))
	})
	require.NoError(t, err)

	bal, err := s.GetUserBalance(ctx, "u1", "0xaa")
	require.NoError(t, err)
	require.True(t, bal.Amount.Equal(decimal.NewFromInt(7)))
}

func TestGetUserBalance_ZeroValueWhenAbsent(t *testing.T) {
	s := NewStore()
	bal, err := s.GetUserBalance(context.Background(), "nobody", "0xaa")
	require.NoError(t, err)
	require.True(t, bal.Amount.IsZero())
	require.Equal(t, "nobody", bal.UserID)
}

func TestSumBalances(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.AddUserBalance(ctx, "u1", "0xaa", decimal.NewFromInt(10)))
	require.NoError(t, s.AddUserBalance(ctx, "u2", "0xaa", decimal.NewFromInt(20)))
	require.NoError(t, s.AddUserBalance(ctx, "u1", "0xbb", decimal.NewFromInt(99)))

	sum, err := s.SumBalances(ctx, "0xaa")
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.NewFromInt(30)))
}

func TestUpdateWithdrawResult(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	rec := &domain.WithdrawRecord{UserID: "u1", AssetID: "0xaa", Amount: decimal.NewFromInt(5), Status: domain.RecordStatusPending}
	require.NoError(t, s.CreateWithdrawRecord(ctx, rec))

	require.NoError(t, s.UpdateWithdrawResult(ctx, rec.ID, "0xhash", domain.RecordStatusConfirmed, ""))
	records, err := s.ListWithdrawRecords(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.RecordStatusConfirmed, records[0].Status)
	require.Equal(t, "0xhash", records[0].TxHash)

	require.Error(t, s.UpdateWithdrawResult(ctx, 424242, "", domain.RecordStatusFailed, "x"))
}

func TestListRecords_Pagination(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateDepositRecord(ctx, &domain.DepositRecord{UserID: "u1", AssetID: "0xaa", Amount: decimal.NewFromInt(int64(i + 1))}))
	}

	// 新的在前
	page1, err := s.ListDepositRecords(ctx, "u1", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, page1[0].Amount.Equal(decimal.NewFromInt(5)))

	page3, err := s.ListDepositRecords(ctx, "u1", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)

	empty, err := s.ListDepositRecords(ctx, "u1", 4, 2)
	require.NoError(t, err)
	require.Empty(t, empty)
}
