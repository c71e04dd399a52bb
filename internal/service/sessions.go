package service

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "errors"
    "time"

    "github.com/hoangvu/cinema-booking/internal/model"
    "github.com/hoangvu/cinema-booking/internal/pricing"
)

// Sessions owns the booking-session state machine: it creates
// sessions, mutates their items and coupon while DRAFT, expires them
// lazily on access and cancels them on request.  Every mutation
// re-locks newly added seats, releases removed ones, recomputes
// pricing and refreshes the session TTL.
type Sessions struct {
    store      SessionStore
    catalog    Catalog
    broadcast  Broadcaster
    sessionTTL time.Duration // DRAFT time-to-live, refreshed on touch
    lockTTL    time.Duration // per-seat lock time-to-live while DRAFT
    now        func() time.Time
}

// NewSessions wires a session lifecycle manager.
func NewSessions(store SessionStore, catalog Catalog, broadcast Broadcaster, sessionTTL, lockTTL time.Duration) *Sessions {
    return &Sessions{
        store:      store,
        catalog:    catalog,
        broadcast:  broadcast,
        sessionTTL: sessionTTL,
        lockTTL:    lockTTL,
        now:        func() time.Time { return time.Now().UTC() },
    }
}

// newSessionID generates the opaque session token: 32 random bytes,
// hex encoded.
func newSessionID() (string, error) {
    b := make([]byte, 32)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return hex.EncodeToString(b), nil
}

// CreateSessionInput is the payload for Create.  OwnerID is nil for
// anonymous sessions.
type CreateSessionInput struct {
    ShowtimeID uint64
    SeatIDs    []uint64
    Combos     []model.ComboLine
    OwnerID    *uint64
}

// Create opens a DRAFT session and reserves all initial seats
// all-or-nothing.  When any seat is held by another session the
// session is not created and a *ConflictError names the contested
// seats.
func (svc *Sessions) Create(ctx context.Context, in CreateSessionInput) (*model.BookingSession, error) {
    now := svc.now()
    showtime, err := svc.catalog.Showtime(ctx, in.ShowtimeID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "showtime"}
        }
        return nil, err
    }

    seatIDs := dedupe(in.SeatIDs)
    seats, err := svc.resolveSeats(ctx, in.ShowtimeID, seatIDs)
    if err != nil {
        return nil, err
    }
    combos, lines, err := svc.resolveCombos(ctx, in.Combos)
    if err != nil {
        return nil, err
    }

    priced, err := pricing.Compute(pricing.Input{
        Showtime: *showtime,
        Seats:    seats,
        Combos:   combos,
        Now:      now,
    })
    if err != nil {
        return nil, err
    }

    id, err := newSessionID()
    if err != nil {
        return nil, err
    }
    s := &model.BookingSession{
        ID:         id,
        ShowtimeID: in.ShowtimeID,
        OwnerID:    in.OwnerID,
        State:      model.SessionDraft,
        Items:      model.SessionItems{Seats: seatIDs, Combos: lines},
        Pricing:    priced,
        CreatedAt:  now,
        UpdatedAt:  now,
        ExpiresAt:  now.Add(svc.sessionTTL),
    }
    conflicts, err := svc.store.Create(ctx, s, svc.lockTTL)
    if err != nil {
        return nil, err
    }
    if len(conflicts) > 0 {
        return nil, &ConflictError{Reason: "seats already held", SeatIDs: conflicts}
    }
    if len(seatIDs) > 0 {
        svc.broadcast.SeatsLocked(ctx, in.ShowtimeID, seatIDs)
    }
    return s, nil
}

// Get returns the session snapshot.  A DRAFT session past its TTL is
// first transitioned to EXPIRED with its locks released, then reported
// as not found.
func (svc *Sessions) Get(ctx context.Context, id string) (*model.BookingSession, error) {
    s, err := svc.store.Get(ctx, id)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "session"}
        }
        return nil, err
    }
    if s.LapsedAt(svc.now()) {
        svc.expire(ctx, id)
        return nil, &NotFoundError{Resource: "session"}
    }
    if s.State == model.SessionExpired {
        return nil, &NotFoundError{Resource: "session"}
    }
    return s, nil
}

// Touch refreshes the TTL of a DRAFT session and extends its seat
// locks.
func (svc *Sessions) Touch(ctx context.Context, id string) (*model.BookingSession, error) {
    return svc.mutateDraft(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        return tx.ExtendLocks(svc.lockTTL)
    })
}

// Cancel moves a DRAFT session to CANCELED and releases its locks
// immediately, independent of TTL.  Terminal sessions and sessions in
// checkout reject with a conflict.
func (svc *Sessions) Cancel(ctx context.Context, id string) (*model.BookingSession, error) {
    var freed []uint64
    s, err := svc.mutateSession(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        var err error
        freed, err = tx.ReleaseAllLocks()
        if err != nil {
            return err
        }
        s.State = model.SessionCanceled
        s.UpdatedAt = svc.now()
        return nil
    })
    if err != nil {
        return nil, err
    }
    if len(freed) > 0 {
        svc.broadcast.SeatsReleased(ctx, s.ShowtimeID, freed)
    }
    return s, nil
}

// SetSeats replaces the session's seat selection: newly added seats
// are locked (all-or-nothing), removed seats are released and pricing
// is recomputed.
func (svc *Sessions) SetSeats(ctx context.Context, id string, seatIDs []uint64) (*model.BookingSession, error) {
    wanted := dedupe(seatIDs)
    var added, removed []uint64
    s, err := svc.mutateDraft(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        seats, err := svc.resolveSeats(ctx, s.ShowtimeID, wanted)
        if err != nil {
            return err
        }
        added, removed = diff(wanted, s.Items.Seats)
        if len(added) > 0 {
            conflicts, err := tx.AcquireSeats(added, svc.lockTTL)
            if err != nil {
                return err
            }
            if len(conflicts) > 0 {
                return &ConflictError{Reason: "seats already held", SeatIDs: conflicts}
            }
        }
        if len(removed) > 0 {
            if err := tx.ReleaseSeats(removed); err != nil {
                return err
            }
        }
        if err := tx.ExtendLocks(svc.lockTTL); err != nil {
            return err
        }
        s.Items.Seats = wanted
        return svc.reprice(ctx, s, seats)
    })
    if err != nil {
        return nil, err
    }
    if len(added) > 0 {
        svc.broadcast.SeatsLocked(ctx, s.ShowtimeID, added)
    }
    if len(removed) > 0 {
        svc.broadcast.SeatsReleased(ctx, s.ShowtimeID, removed)
    }
    return s, nil
}

// SetCombos replaces the session's combo lines, enforcing the
// per-session unit cap.  A rejected update leaves the prior combo
// state untouched.
func (svc *Sessions) SetCombos(ctx context.Context, id string, combos []model.ComboLine) (*model.BookingSession, error) {
    return svc.mutateDraft(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        _, lines, err := svc.resolveCombos(ctx, combos)
        if err != nil {
            return err
        }
        s.Items.Combos = lines
        return svc.reprice(ctx, s, nil)
    })
}

// SetCoupon applies a voucher code to a DRAFT session.  Voucher
// operations require an authenticated caller owning the session; an
// unusable voucher surfaces as a *pricing.VoucherError and nothing is
// persisted.
func (svc *Sessions) SetCoupon(ctx context.Context, id, code string, callerID *uint64) (*model.BookingSession, error) {
    if callerID == nil {
        return nil, &UnauthorizedError{Reason: "voucher operations require authentication"}
    }
    return svc.mutateDraft(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        if s.OwnerID == nil {
            return &ValidationError{Reason: "coupon not allowed on anonymous session"}
        }
        if *s.OwnerID != *callerID {
            return &UnauthorizedError{Reason: "session owner mismatch"}
        }
        s.CouponCode = &code
        return svc.reprice(ctx, s, nil)
    })
}

// RemoveCoupon drops the session's coupon and recomputes pricing.
func (svc *Sessions) RemoveCoupon(ctx context.Context, id string, callerID *uint64) (*model.BookingSession, error) {
    if callerID == nil {
        return nil, &UnauthorizedError{Reason: "voucher operations require authentication"}
    }
    return svc.mutateDraft(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        if s.OwnerID == nil || *s.OwnerID != *callerID {
            return &UnauthorizedError{Reason: "session owner mismatch"}
        }
        s.CouponCode = nil
        return svc.reprice(ctx, s, nil)
    })
}

// Preview computes the price the session would have with the given
// coupon without persisting anything.  A nil coupon previews the
// session as-is.
func (svc *Sessions) Preview(ctx context.Context, id string, coupon *string, callerID *uint64) (model.Pricing, error) {
    s, err := svc.Get(ctx, id)
    if err != nil {
        return model.Pricing{}, err
    }
    code := ""
    if coupon != nil {
        code = *coupon
    } else if s.CouponCode != nil {
        code = *s.CouponCode
    }
    return svc.compute(ctx, s, nil, code, callerID != nil)
}

// mutateDraft wraps mutateSession with the DRAFT-only guard and the
// TTL refresh shared by every item/coupon mutation.
func (svc *Sessions) mutateDraft(ctx context.Context, id string, fn func(tx SessionTx, s *model.BookingSession) error) (*model.BookingSession, error) {
    return svc.mutateSession(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        if err := fn(tx, s); err != nil {
            return err
        }
        now := svc.now()
        s.UpdatedAt = now
        s.ExpiresAt = now.Add(svc.sessionTTL)
        return nil
    })
}

// mutateSession runs fn under the session lock after the lazy-expiry
// and state guards: an overdue DRAFT session is expired (committed)
// and reported as not found; terminal and checked-out sessions reject
// mutation with a conflict.
func (svc *Sessions) mutateSession(ctx context.Context, id string, fn func(tx SessionTx, s *model.BookingSession) error) (*model.BookingSession, error) {
    var lapsedSeats []uint64
    lapsed := false
    var showtimeID uint64
    s, err := svc.store.Mutate(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        showtimeID = s.ShowtimeID
        if s.LapsedAt(svc.now()) {
            var err error
            lapsedSeats, err = tx.ReleaseAllLocks()
            if err != nil {
                return err
            }
            s.State = model.SessionExpired
            s.UpdatedAt = svc.now()
            lapsed = true
            return nil
        }
        switch s.State {
        case model.SessionDraft:
            return fn(tx, s)
        case model.SessionPendingPayment:
            return &ConflictError{Reason: "checkout already started"}
        default:
            return &ConflictError{Reason: "session is " + string(s.State)}
        }
    })
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return nil, &NotFoundError{Resource: "session"}
        }
        return nil, err
    }
    if lapsed {
        if len(lapsedSeats) > 0 {
            svc.broadcast.SeatsReleased(ctx, showtimeID, lapsedSeats)
        }
        return nil, &NotFoundError{Resource: "session"}
    }
    return s, nil
}

// expire performs the lazy DRAFT -> EXPIRED transition on behalf of a
// read access.  Errors are swallowed: the read path already reports
// the session as gone and the sweep will catch stragglers.
func (svc *Sessions) expire(ctx context.Context, id string) {
    var freed []uint64
    var showtimeID uint64
    _, err := svc.store.Mutate(ctx, id, func(tx SessionTx, s *model.BookingSession) error {
        showtimeID = s.ShowtimeID
        if !s.LapsedAt(svc.now()) {
            return nil
        }
        var err error
        freed, err = tx.ReleaseAllLocks()
        if err != nil {
            return err
        }
        s.State = model.SessionExpired
        s.UpdatedAt = svc.now()
        return nil
    })
    if err == nil && len(freed) > 0 {
        svc.broadcast.SeatsReleased(ctx, showtimeID, freed)
    }
}

// reprice recomputes the session's pricing snapshot from its current
// items and coupon.  When the stored coupon stopped validating because
// of the item change, the coupon is dropped rather than failing the
// mutation; SetCoupon is the operation that surfaces voucher errors.
func (svc *Sessions) reprice(ctx context.Context, s *model.BookingSession, seats []model.Seat) error {
    code := ""
    if s.CouponCode != nil {
        code = *s.CouponCode
    }
    priced, err := svc.compute(ctx, s, seats, code, s.OwnerID != nil)
    var verr *pricing.VoucherError
    if errors.As(err, &verr) {
        if code != "" && code != verr.Code {
            // the voucher broke before this mutation; keep surfacing it
            return err
        }
        // the item change invalidated the stored coupon: drop it
        s.CouponCode = nil
        priced, err = svc.compute(ctx, s, seats, "", false)
    }
    if err != nil {
        return err
    }
    s.Pricing = priced
    return nil
}

// compute loads whatever catalog data is still missing and runs the
// pricing engine.  seats may be pre-resolved by the caller to avoid a
// duplicate lookup.
func (svc *Sessions) compute(ctx context.Context, s *model.BookingSession, seats []model.Seat, couponCode string, authenticated bool) (model.Pricing, error) {
    showtime, err := svc.catalog.Showtime(ctx, s.ShowtimeID)
    if err != nil {
        if errors.Is(err, ErrNotFound) {
            return model.Pricing{}, &NotFoundError{Resource: "showtime"}
        }
        return model.Pricing{}, err
    }
    if seats == nil {
        seats, err = svc.resolveSeats(ctx, s.ShowtimeID, s.Items.Seats)
        if err != nil {
            return model.Pricing{}, err
        }
    }
    combos, _, err := svc.resolveCombos(ctx, s.Items.Combos)
    if err != nil {
        return model.Pricing{}, err
    }
    var voucher *model.Voucher
    if couponCode != "" {
        voucher, err = svc.catalog.Voucher(ctx, couponCode)
        if err != nil && !errors.Is(err, ErrNotFound) {
            return model.Pricing{}, err
        }
    }
    return pricing.Compute(pricing.Input{
        Showtime:      *showtime,
        Seats:         seats,
        Combos:        combos,
        Voucher:       voucher,
        VoucherCode:   couponCode,
        Authenticated: authenticated,
        Now:           svc.now(),
    })
}

// resolveSeats loads the requested seats for the showtime and fails
// with a not-found error when any id does not belong to it.
func (svc *Sessions) resolveSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.Seat, error) {
    if len(seatIDs) == 0 {
        return nil, nil
    }
    seats, err := svc.catalog.Seats(ctx, showtimeID, seatIDs)
    if err != nil {
        return nil, err
    }
    if len(seats) != len(seatIDs) {
        return nil, &NotFoundError{Resource: "seat"}
    }
    return seats, nil
}

// resolveCombos validates and normalizes combo lines: zero quantities
// are dropped, duplicate lines merge, unknown or inactive combos and
// cap violations are rejected.
func (svc *Sessions) resolveCombos(ctx context.Context, lines []model.ComboLine) ([]pricing.ComboSelection, []model.ComboLine, error) {
    merged := make(map[uint64]uint32)
    order := make([]uint64, 0, len(lines))
    for _, l := range lines {
        if l.Quantity == 0 {
            continue
        }
        if _, seen := merged[l.ComboID]; !seen {
            order = append(order, l.ComboID)
        }
        merged[l.ComboID] += l.Quantity
    }
    if len(order) == 0 {
        return nil, []model.ComboLine{}, nil
    }
    var total uint32
    for _, q := range merged {
        total += q
    }
    if total > model.MaxComboUnits {
        return nil, nil, &ValidationError{Reason: "combo unit cap exceeded"}
    }
    combos, err := svc.catalog.Combos(ctx, order)
    if err != nil {
        return nil, nil, err
    }
    selections := make([]pricing.ComboSelection, 0, len(order))
    normalized := make([]model.ComboLine, 0, len(order))
    for _, id := range order {
        combo, ok := combos[id]
        if !ok || !combo.Active {
            return nil, nil, &ValidationError{Reason: "unknown or inactive combo"}
        }
        selections = append(selections, pricing.ComboSelection{Combo: combo, Quantity: merged[id]})
        normalized = append(normalized, model.ComboLine{ComboID: id, Quantity: merged[id]})
    }
    return selections, normalized, nil
}

// dedupe drops zero and duplicate ids preserving order.
func dedupe(ids []uint64) []uint64 {
    out := make([]uint64, 0, len(ids))
    seen := make(map[uint64]struct{}, len(ids))
    for _, id := range ids {
        if id == 0 {
            continue
        }
        if _, ok := seen[id]; !ok {
            seen[id] = struct{}{}
            out = append(out, id)
        }
    }
    return out
}

// diff returns the ids present in want but not in have, and vice
// versa.
func diff(want, have []uint64) (added, removed []uint64) {
    haveSet := make(map[uint64]struct{}, len(have))
    for _, id := range have {
        haveSet[id] = struct{}{}
    }
    wantSet := make(map[uint64]struct{}, len(want))
    for _, id := range want {
        wantSet[id] = struct{}{}
        if _, ok := haveSet[id]; !ok {
            added = append(added, id)
        }
    }
    for _, id := range have {
        if _, ok := wantSet[id]; !ok {
            removed = append(removed, id)
        }
    }
    return added, removed
}
