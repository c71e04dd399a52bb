// Package pricing computes the price breakdown of a booking session.
// The computation is pure: all catalog data (showtime base price, seat
// surcharges, combo prices, voucher rules) is loaded by the caller and
// passed in, so identical inputs always yield identical totals.
package pricing

import (
    "fmt"
    "time"

    "github.com/hoangvu/cinema-booking/internal/model"
)

// Voucher rejection reasons.  A rejected voucher surfaces as a
// *VoucherError instead of a silent zero discount; the caller decides
// whether to drop the coupon or fail the request.
const (
    ReasonAuthRequired   = "authentication_required"
    ReasonNotFound       = "voucher_not_found"
    ReasonInactive       = "voucher_inactive"
    ReasonNotStarted     = "voucher_not_started"
    ReasonExpired        = "voucher_expired"
    ReasonBudgetExceeded = "voucher_usage_exhausted"
    ReasonMinTotal       = "voucher_min_total_not_met"
)

// VoucherError reports why a coupon could not be applied.
type VoucherError struct {
    Code   string // voucher code as supplied
    Reason string // one of the Reason* constants
}

func (e *VoucherError) Error() string {
    return fmt.Sprintf("voucher %q rejected: %s", e.Code, e.Reason)
}

// ComboSelection pairs a resolved combo with the quantity requested.
type ComboSelection struct {
    Combo    model.Combo
    Quantity uint32
}

// Input is everything Compute needs.  Voucher is nil when no coupon is
// applied.  Authenticated tells whether the caller owns an identity;
// vouchers are restricted to authenticated owners.
type Input struct {
    Showtime      model.Showtime
    Seats         []model.Seat
    Combos        []ComboSelection
    Voucher       *model.Voucher
    VoucherCode   string
    Authenticated bool
    Now           time.Time
}

// Compute returns the subtotal/discount/total breakdown for the input.
//
//   subtotal = Σ(base price + seat surcharge) + Σ(combo unit price × qty)
//   discount = voucher percent of subtotal, capped, or zero without voucher
//   total    = subtotal − discount, floored at zero
//
// An unusable voucher returns a *VoucherError and a zero Pricing.
func Compute(in Input) (model.Pricing, error) {
    var subtotal int64
    for _, s := range in.Seats {
        subtotal += in.Showtime.BasePriceCents + s.SurchargeCents
    }
    for _, c := range in.Combos {
        subtotal += c.Combo.UnitPriceCents * int64(c.Quantity)
    }

    var discount int64
    if in.VoucherCode != "" {
        if err := validateVoucher(in, subtotal); err != nil {
            return model.Pricing{}, err
        }
        v := in.Voucher
        discount = subtotal * int64(v.PercentOff) / 100
        if v.MaxDiscountCents > 0 && discount > v.MaxDiscountCents {
            discount = v.MaxDiscountCents
        }
    }

    total := subtotal - discount
    if total < 0 {
        total = 0
    }
    return model.Pricing{
        SubtotalCents: subtotal,
        DiscountCents: discount,
        TotalCents:    total,
    }, nil
}

// validateVoucher applies the eligibility rules for a coupon: the
// caller must be authenticated, the voucher must exist, be active,
// sit inside its validity window, have usage budget remaining and the
// subtotal must reach the voucher's minimum.
func validateVoucher(in Input, subtotal int64) error {
    if !in.Authenticated {
        return &VoucherError{Code: in.VoucherCode, Reason: ReasonAuthRequired}
    }
    v := in.Voucher
    if v == nil {
        return &VoucherError{Code: in.VoucherCode, Reason: ReasonNotFound}
    }
    if !v.Active {
        return &VoucherError{Code: v.Code, Reason: ReasonInactive}
    }
    if in.Now.Before(v.ValidFrom) {
        return &VoucherError{Code: v.Code, Reason: ReasonNotStarted}
    }
    if in.Now.After(v.ValidUntil) {
        return &VoucherError{Code: v.Code, Reason: ReasonExpired}
    }
    if v.UsageLimit > 0 && v.UsedCount >= v.UsageLimit {
        return &VoucherError{Code: v.Code, Reason: ReasonBudgetExceeded}
    }
    if v.MinTotalCents > 0 && subtotal < v.MinTotalCents {
        return &VoucherError{Code: v.Code, Reason: ReasonMinTotal}
    }
    return nil
}
