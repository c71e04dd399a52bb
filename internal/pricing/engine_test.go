package pricing

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hoangvu/cinema-booking/internal/model"
)

var testShowtime = model.Showtime{ID: 1, MovieTitle: "Dune", BasePriceCents: 9000}

func vipSeat(id uint64) model.Seat {
    return model.Seat{ID: id, SeatType: "VIP", SurchargeCents: 3000}
}

func stdSeat(id uint64) model.Seat {
    return model.Seat{ID: id, SeatType: "STANDARD", SurchargeCents: 0}
}

func validVoucher(now time.Time) *model.Voucher {
    return &model.Voucher{
        Code:       "WELCOME10",
        PercentOff: 10,
        ValidFrom:  now.Add(-time.Hour),
        ValidUntil: now.Add(time.Hour),
        Active:     true,
    }
}

func TestComputeSubtotal(t *testing.T) {
    got, err := Compute(Input{
        Showtime: testShowtime,
        Seats:    []model.Seat{stdSeat(1), vipSeat(2)},
        Combos: []ComboSelection{
            {Combo: model.Combo{ID: 7, UnitPriceCents: 5500}, Quantity: 2},
        },
        Now: time.Now().UTC(),
    })
    require.NoError(t, err)
    // 9000 + (9000+3000) + 2*5500
    assert.Equal(t, int64(32000), got.SubtotalCents)
    assert.Equal(t, int64(0), got.DiscountCents)
    assert.Equal(t, got.SubtotalCents, got.TotalCents)
}

func TestComputeIsDeterministic(t *testing.T) {
    now := time.Now().UTC()
    in := Input{
        Showtime:      testShowtime,
        Seats:         []model.Seat{vipSeat(1), vipSeat(2)},
        Voucher:       validVoucher(now),
        VoucherCode:   "WELCOME10",
        Authenticated: true,
        Now:           now,
    }
    first, err := Compute(in)
    require.NoError(t, err)
    second, err := Compute(in)
    require.NoError(t, err)
    assert.Equal(t, first, second)
}

func TestComputeAppliesVoucherDiscount(t *testing.T) {
    now := time.Now().UTC()
    got, err := Compute(Input{
        Showtime:      testShowtime,
        Seats:         []model.Seat{stdSeat(1), stdSeat(2)},
        Voucher:       validVoucher(now),
        VoucherCode:   "WELCOME10",
        Authenticated: true,
        Now:           now,
    })
    require.NoError(t, err)
    assert.Equal(t, int64(18000), got.SubtotalCents)
    assert.Equal(t, int64(1800), got.DiscountCents)
    assert.Equal(t, int64(16200), got.TotalCents)
}

func TestComputeCapsDiscount(t *testing.T) {
    now := time.Now().UTC()
    v := validVoucher(now)
    v.PercentOff = 100
    v.MaxDiscountCents = 5000
    got, err := Compute(Input{
        Showtime:      testShowtime,
        Seats:         []model.Seat{stdSeat(1)},
        Voucher:       v,
        VoucherCode:   v.Code,
        Authenticated: true,
        Now:           now,
    })
    require.NoError(t, err)
    assert.Equal(t, int64(5000), got.DiscountCents)
    assert.Equal(t, int64(4000), got.TotalCents)
}

func TestComputeTotalNeverNegative(t *testing.T) {
    now := time.Now().UTC()
    v := validVoucher(now)
    v.PercentOff = 100
    got, err := Compute(Input{
        Showtime:      testShowtime,
        Seats:         []model.Seat{stdSeat(1)},
        Voucher:       v,
        VoucherCode:   v.Code,
        Authenticated: true,
        Now:           now,
    })
    require.NoError(t, err)
    assert.GreaterOrEqual(t, got.TotalCents, int64(0))
    assert.Equal(t, int64(0), got.TotalCents)
}

func TestComputeVoucherRejections(t *testing.T) {
    now := time.Now().UTC()
    cases := []struct {
        name   string
        mutate func(in *Input)
        reason string
    }{
        {"anonymous caller", func(in *Input) { in.Authenticated = false }, ReasonAuthRequired},
        {"unknown code", func(in *Input) { in.Voucher = nil }, ReasonNotFound},
        {"inactive", func(in *Input) { in.Voucher.Active = false }, ReasonInactive},
        {"not started", func(in *Input) { in.Voucher.ValidFrom = now.Add(time.Hour) }, ReasonNotStarted},
        {"expired", func(in *Input) { in.Voucher.ValidUntil = now.Add(-time.Hour) }, ReasonExpired},
        {"budget exhausted", func(in *Input) {
            in.Voucher.UsageLimit = 5
            in.Voucher.UsedCount = 5
        }, ReasonBudgetExceeded},
        {"below minimum total", func(in *Input) { in.Voucher.MinTotalCents = 100000 }, ReasonMinTotal},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            in := Input{
                Showtime:      testShowtime,
                Seats:         []model.Seat{stdSeat(1)},
                Voucher:       validVoucher(now),
                VoucherCode:   "WELCOME10",
                Authenticated: true,
                Now:           now,
            }
            tc.mutate(&in)
            _, err := Compute(in)
            var verr *VoucherError
            require.ErrorAs(t, err, &verr)
            assert.Equal(t, tc.reason, verr.Reason)
        })
    }
}
