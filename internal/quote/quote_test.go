package quote

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniSwap/internal/model"
	"miniSwap/internal/units"
)

func ether(s string) units.Amount {
	a, err := units.Parse(s, 18)
	if err != nil {
		panic(err)
	}
	return a
}

func pool(r0, r1, total, caller string) model.PoolSnapshot {
	return model.PoolSnapshot{
		Reserve0:     ether(r0),
		Reserve1:     ether(r1),
		TotalShares:  ether(total),
		CallerShares: ether(caller),
	}
}

func TestSwap(t *testing.T) {
	testCases := []struct {
		name        string
		snap        model.PoolSnapshot
		dir         model.Direction
		amountIn    units.Amount
		expectedOut string
		expectedErr error
	}{
		{
			name:        "ratio 1:4, 10 asset0 in",
			snap:        pool("100", "400", "200", "0"),
			dir:         model.ZeroForOne,
			amountIn:    ether("10"),
			expectedOut: "36264435755205965263",
		},
		{
			name:        "reverse direction uses swapped reserves",
			snap:        pool("100", "400", "200", "0"),
			dir:         model.OneForZero,
			amountIn:    ether("40"),
			expectedOut: "9066108938801491315",
		},
		{
			name:        "zero reserve in",
			snap:        model.PoolSnapshot{Reserve1: ether("400")},
			dir:         model.ZeroForOne,
			amountIn:    ether("10"),
			expectedOut: "0",
		},
		{
			name:        "zero reserve out",
			snap:        model.PoolSnapshot{Reserve0: ether("100")},
			dir:         model.ZeroForOne,
			amountIn:    ether("10"),
			expectedOut: "0",
		},
		{
			name:        "zero amount in",
			snap:        pool("100", "400", "200", "0"),
			dir:         model.ZeroForOne,
			amountIn:    units.Zero(),
			expectedOut: "0",
		},
		{
			name:        "fee truncates small inputs to zero",
			snap:        pool("100", "400", "200", "0"),
			dir:         model.ZeroForOne,
			amountIn:    units.FromUint64(1),
			expectedOut: "0",
		},
		{
			name:        "invalid direction",
			snap:        pool("100", "400", "200", "0"),
			dir:         model.Direction("sideways"),
			amountIn:    ether("1"),
			expectedErr: ErrInvalidDirection,
		},
		{
			name:        "overflow fails like the contract",
			snap:        model.PoolSnapshot{Reserve0: units.FromUint64(1), Reserve1: units.Max(), TotalShares: units.FromUint64(1)},
			dir:         model.ZeroForOne,
			amountIn:    units.FromUint64(1000),
			expectedErr: units.ErrOverflow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Swap(tc.snap, tc.dir, tc.amountIn)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedOut, got.AmountOut.String())
		})
	}
}

func TestSwapScenarioDisplay(t *testing.T) {
	got, err := Swap(pool("100", "400", "200", "0"), model.ZeroForOne, ether("10"))
	require.NoError(t, err)
	assert.Equal(t, "9.97", got.AmountInWithFee.Format(18))
	assert.Equal(t, "36.264436", got.AmountOut.Display(18))
}

func TestSwapMonotonicAndBounded(t *testing.T) {
	snap := pool("1000", "250", "500", "0")
	reserveOut := snap.Reserve1
	previous := units.Zero()
	for _, in := range []string{"0.000001", "0.5", "1", "3", "10", "999", "1000000", "1000000000000"} {
		got, err := Swap(snap, model.ZeroForOne, ether(in))
		require.NoError(t, err)
		assert.False(t, got.AmountOut.Lt(previous), "output decreased at %s", in)
		assert.True(t, got.AmountOut.Lt(reserveOut), "output drained the pool at %s", in)
		previous = got.AmountOut
	}
}

func TestDeposit(t *testing.T) {
	snap := pool("100", "400", "200", "0")

	q, err := Deposit(snap, ether("5"), model.Side0)
	require.NoError(t, err)
	assert.False(t, q.FreeRatio)
	assert.Equal(t, ether("20").String(), q.Amount1.String())
	assert.Equal(t, ether("10").String(), q.EstimatedShares.String())

	q, err = Deposit(snap, ether("20"), model.Side1)
	require.NoError(t, err)
	assert.Equal(t, ether("5").String(), q.Amount0.String())

	_, err = Deposit(snap, units.Zero(), model.Side0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Deposit(snap, ether("1"), model.Side(3))
	require.ErrorIs(t, err, ErrInvalidSide)
}

func TestDepositEmptyPool(t *testing.T) {
	q, err := Deposit(model.PoolSnapshot{}, ether("50"), model.Side0)
	require.NoError(t, err)
	assert.True(t, q.FreeRatio)
	assert.True(t, q.Amount1.IsZero())

	for _, amount1 := range []string{"0.000000000000000001", "1", "50", "12345"} {
		pair, err := DepositPair(model.PoolSnapshot{}, ether("50"), ether(amount1))
		require.NoError(t, err, "amount1 %s", amount1)
		assert.True(t, pair.FreeRatio)
	}

	assert.True(t, ProjectedPoolShare(model.PoolSnapshot{}, ether("50")).Equal(decimal.NewFromInt(100)))
}

func TestDepositPairRejectsZero(t *testing.T) {
	_, err := DepositPair(model.PoolSnapshot{}, ether("1"), units.Zero())
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawal(t *testing.T) {
	snap := model.PoolSnapshot{
		Reserve0:     ether("100"),
		Reserve1:     ether("400"),
		TotalShares:  units.FromUint64(1000),
		CallerShares: units.FromUint64(250),
	}

	q, err := Withdrawal(snap, units.FromUint64(250))
	require.NoError(t, err)
	assert.Equal(t, ether("25").String(), q.Amount0.String())
	assert.Equal(t, ether("100").String(), q.Amount1.String())

	_, err = Withdrawal(snap, units.FromUint64(251))
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = Withdrawal(snap, units.Zero())
	require.ErrorIs(t, err, ErrInvalidShares)

	_, err = Withdrawal(model.PoolSnapshot{CallerShares: units.FromUint64(1)}, units.FromUint64(1))
	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestDepositWithdrawalRoundTrip(t *testing.T) {
	snap := model.PoolSnapshot{
		Reserve0:     units.MustFromString("1000000000000000000007"),
		Reserve1:     units.MustFromString("3999999999999999999983"),
		TotalShares:  units.MustFromString("1999999999999999999991"),
		CallerShares: units.MustFromString("17"),
	}

	deposit, err := Deposit(snap, units.MustFromString("123456789012345678"), model.Side0)
	require.NoError(t, err)
	shares := deposit.EstimatedShares
	require.False(t, shares.IsZero())

	after := snap
	after.Reserve0, _ = snap.Reserve0.Add(deposit.Amount0)
	after.Reserve1, _ = snap.Reserve1.Add(deposit.Amount1)
	after.TotalShares, _ = snap.TotalShares.Add(shares)
	after.CallerShares, _ = snap.CallerShares.Add(shares)

	withdrawal, err := Withdrawal(after, shares)
	require.NoError(t, err)

	// Truncation loses at most reserve/totalShares plus one unit per division.
	tolerance := units.FromUint64(4)
	assertWithin(t, deposit.Amount0, withdrawal.Amount0, tolerance)
	assertWithin(t, deposit.Amount1, withdrawal.Amount1, tolerance)
}

func TestProjectedPoolShare(t *testing.T) {
	snap := pool("100", "400", "200", "50")

	got := ProjectedPoolShare(snap, ether("100"))
	// new = 100/100*200 = 200 shares, (50+200)/(200+200) = 62.5%
	assert.True(t, got.Equal(decimal.RequireFromString("62.5")), "got %s", got)

	got = ProjectedPoolShare(model.PoolSnapshot{Reserve1: ether("1")}, ether("1"))
	assert.True(t, got.IsZero())
}

func TestCallerPoolShare(t *testing.T) {
	assert.True(t, CallerPoolShare(pool("100", "400", "200", "50")).Equal(decimal.NewFromInt(25)))
	assert.True(t, CallerPoolShare(model.PoolSnapshot{}).IsZero())
}

func TestSpotPrice(t *testing.T) {
	snap := pool("100", "400", "200", "0")
	assert.True(t, SpotPrice(snap, model.ZeroForOne, 18, 18).Equal(decimal.NewFromInt(4)))
	assert.True(t, SpotPrice(snap, model.OneForZero, 18, 18).Equal(decimal.RequireFromString("0.25")))
}

func assertWithin(t *testing.T, want, got, tolerance units.Amount) {
	t.Helper()
	diff, err := want.Sub(got)
	if err != nil {
		diff, _ = got.Sub(want)
	}
	assert.False(t, diff.Gt(tolerance), "want %s got %s (diff %s)", want, got, diff)
}
