package service

import (
    "context"
    "log"
    "time"
)

// LockSweeper deletes expired seat locks in bulk.
type LockSweeper interface {
    SweepExpiredLocks(ctx context.Context) (int64, error)
}

// RunLockSweeper periodically sweeps expired seat locks until the
// context is cancelled.  The sweep is housekeeping only: expired locks
// are already logically free and stealable on acquire, so a delayed or
// stopped sweeper never affects correctness, it only accelerates seat
// release for sessions nobody touches anymore.
func RunLockSweeper(ctx context.Context, s LockSweeper, every time.Duration) {
    ticker := time.NewTicker(every)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            n, err := s.SweepExpiredLocks(ctx)
            if err != nil {
                log.Printf("lock-sweeper: sweep failed: %v", err)
                continue
            }
            if n > 0 {
                log.Printf("lock-sweeper: removed %d expired locks", n)
            }
        }
    }
}
