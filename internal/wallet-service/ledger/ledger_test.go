package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/wager-wallet/internal/wallet-service/money"
)

// testStore roda o mesmo contrato contra qualquer implementação de Store
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, acc.ID)
		assert.True(t, acc.Balance.IsZero())

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)

		_, err = s.GetAccount(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("commit applies all writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		err = s.RunInTx(ctx, func(tx Tx) error {
			a, err := tx.LockAccount(ctx, acc.ID)
			if err != nil {
				return err
			}
			a.Balance = money.MustParse("50")
			if err := tx.SaveAccount(ctx, a); err != nil {
				return err
			}
			rec := &Record{AccountID: a.ID, Kind: KindDeposit, Amount: money.MustParse("50"), BalanceAfter: a.Balance}
			if err := tx.AppendRecord(ctx, rec); err != nil {
				return err
			}
			assert.NotZero(t, rec.ID)
			assert.False(t, rec.CreatedAt.IsZero())
			return nil
		})
		require.NoError(t, err)

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "50.0000", got.Balance.String())

		recs, err := s.RecentRecords(ctx, acc.ID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, KindDeposit, recs[0].Kind)
		assert.Equal(t, "50.0000", recs[0].BalanceAfter.String())
	})

	t.Run("error rolls back every write", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = s.RunInTx(ctx, func(tx Tx) error {
			a, err := tx.LockAccount(ctx, acc.ID)
			if err != nil {
				return err
			}
			a.Balance = money.MustParse("10")
			if err := tx.SaveAccount(ctx, a); err != nil {
				return err
			}
			if err := tx.AppendRecord(ctx, &Record{AccountID: a.ID, Kind: KindDeposit, Amount: a.Balance, BalanceAfter: a.Balance}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.IsZero())
		recs, err := s.RecentRecords(ctx, acc.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("negative balance rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		err = s.RunInTx(ctx, func(tx Tx) error {
			a, err := tx.LockAccount(ctx, acc.ID)
			if err != nil {
				return err
			}
			a.Balance = money.MustParse("-0.0001")
			return tx.SaveAccount(ctx, a)
		})
		assert.ErrorIs(t, err, ErrNegativeBalance)
	})

	t.Run("lock unknown account", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.RunInTx(ctx, func(tx Tx) error {
			_, err := tx.LockAccount(ctx, "00000000-0000-0000-0000-000000000000")
			return err
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("recent records newest first with limit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		balance := money.Zero
		for i := 1; i <= 5; i++ {
			err := s.RunInTx(ctx, func(tx Tx) error {
				a, err := tx.LockAccount(ctx, acc.ID)
				if err != nil {
					return err
				}
				a.Balance = a.Balance.Add(money.MustParse("1"))
				balance = a.Balance
				if err := tx.SaveAccount(ctx, a); err != nil {
					return err
				}
				return tx.AppendRecord(ctx, &Record{AccountID: a.ID, Kind: KindDeposit, Amount: money.MustParse("1"), BalanceAfter: a.Balance})
			})
			require.NoError(t, err)
		}

		recs, err := s.RecentRecords(ctx, acc.ID, 3)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, balance.String(), recs[0].BalanceAfter.String())
		assert.Greater(t, recs[0].ID, recs[1].ID)
		assert.Greater(t, recs[1].ID, recs[2].ID)
	})

	t.Run("lock serializes same account", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RunInTx(ctx, func(tx Tx) error {
					a, err := tx.LockAccount(ctx, acc.ID)
					if err != nil {
						return err
					}
					a.Balance = a.Balance.Add(money.MustParse("0.5"))
					return tx.SaveAccount(ctx, a)
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "10.0000", got.Balance.String())
	})

	t.Run("seq is contiguous per account in commit order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)
		other, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		credit := func(id string, amt string, fail error) error {
			return s.RunInTx(ctx, func(tx Tx) error {
				a, err := tx.LockAccount(ctx, id)
				if err != nil {
					return err
				}
				a.Balance = a.Balance.Add(money.MustParse(amt))
				if err := tx.SaveAccount(ctx, a); err != nil {
					return err
				}
				if err := tx.AppendRecord(ctx, &Record{AccountID: id, Kind: KindDeposit, Amount: money.MustParse(amt), BalanceAfter: a.Balance}); err != nil {
					return err
				}
				return fail
			})
		}

		const n = 12
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, credit(acc.ID, "1", nil))
			}()
		}
		wg.Wait()

		// rollback não consome seq
		require.Error(t, credit(acc.ID, "1", errors.New("boom")))
		require.NoError(t, credit(other.ID, "7", nil))
		require.NoError(t, credit(acc.ID, "1", nil))

		recs, err := s.RecentRecords(ctx, acc.ID, 100)
		require.NoError(t, err)
		require.Len(t, recs, n+1)
		for i, r := range recs {
			want := int64(n + 1 - i)
			assert.Equal(t, want, r.Seq)
			// cada crédito é 1, então o saldo após o lançamento é o próprio seq
			assert.Equal(t, money.FromUnits(want*10000).String(), r.BalanceAfter.String())
		}

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n+1), got.Seq)

		recs, err = s.RecentRecords(ctx, other.ID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(1), recs[0].Seq)
	})

	t.Run("save account keeps the store seq", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		acc, err := s.CreateAccount(ctx)
		require.NoError(t, err)

		err = s.RunInTx(ctx, func(tx Tx) error {
			a, err := tx.LockAccount(ctx, acc.ID)
			if err != nil {
				return err
			}
			first := &Record{AccountID: a.ID, Kind: KindDeposit, Amount: money.MustParse("2"), BalanceAfter: money.MustParse("2")}
			if err := tx.AppendRecord(ctx, first); err != nil {
				return err
			}
			a.Balance = money.MustParse("1")
			a.Seq = 99
			if err := tx.SaveAccount(ctx, a); err != nil {
				return err
			}
			second := &Record{AccountID: a.ID, Kind: KindBet, Amount: money.MustParse("-1"), BalanceAfter: a.Balance}
			if err := tx.AppendRecord(ctx, second); err != nil {
				return err
			}
			assert.Equal(t, int64(1), first.Seq)
			assert.Equal(t, int64(2), second.Seq)
			return nil
		})
		require.NoError(t, err)

		got, err := s.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Seq)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func(*testing.T) Store { return NewMemory() })
}

func TestMemoryLockHonoursContext(t *testing.T) {
	s := NewMemory()
	acc, err := s.CreateAccount(context.Background())
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(tx Tx) error {
			if _, err := tx.LockAccount(context.Background(), acc.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.LockAccount(ctx, acc.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestMemoryDifferentAccountsDoNotBlock(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	a, err := s.CreateAccount(ctx)
	require.NoError(t, err)
	b, err := s.CreateAccount(ctx)
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.RunInTx(ctx, func(tx Tx) error {
			_, err := tx.LockAccount(ctx, a.ID)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked
	defer close(release)

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err = s.RunInTx(tctx, func(tx Tx) error {
		_, err := tx.LockAccount(tctx, b.ID)
		return err
	})
	assert.NoError(t, err)
}

func TestMemoryRequiresLock(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	acc, err := s.CreateAccount(ctx)
	require.NoError(t, err)

	err = s.RunInTx(ctx, func(tx Tx) error {
		return tx.SaveAccount(ctx, acc)
	})
	assert.ErrorIs(t, err, ErrNotLocked)

	err = s.RunInTx(ctx, func(tx Tx) error {
		return tx.AppendRecord(ctx, &Record{AccountID: acc.ID, Kind: KindDeposit})
	})
	assert.ErrorIs(t, err, ErrNotLocked)
}
