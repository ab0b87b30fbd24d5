package deliver

import (
	"context"
	"fmt"
	"time"

	logx "courtcast/pkg/logx"
)

// Policy is an injectable retry policy, separate from the transport
// call itself so both can be tested in isolation.
//
// Defaults (when fields are zero):
//   - max_attempts: 3
//   - delay: 2s (fixed between attempts)
//   - attempt_timeout: 10s (per-attempt network bound)
type Policy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = 2 * time.Second
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 10 * time.Second
	}
	return p
}

// Deliverer wraps a Sender with the retry policy.
type Deliverer struct {
	S   Sender
	P   Policy
	Log logx.Logger

	// OnAttempt, when set, is invoked once per attempt (metrics hook).
	OnAttempt func()
}

// Deliver attempts the send until it is acknowledged or attempts run
// out. The error (and response) of the LAST attempt is what callers
// persist.
func (d *Deliverer) Deliver(ctx context.Context, m Message) (Response, error) {
	p := d.P.normalized()

	var (
		resp    Response
		lastErr error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d.OnAttempt != nil {
			d.OnAttempt()
		}
		callCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		r, err := d.S.Send(callCtx, m)
		cancel()

		if err == nil && r.OK() {
			return r, nil
		}
		resp = r
		if err == nil {
			err = fmt.Errorf("send not acknowledged: status=%q result=%q", r.Status, r.Result)
		}
		lastErr = err

		if attempt >= p.MaxAttempts {
			break
		}
		d.Log.Debug("delivery retry scheduled",
			logx.String("destination", m.Destination),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", p.Delay),
			logx.Err(err),
		)
		tmr := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return resp, ctx.Err()
		case <-tmr.C:
		}
	}
	return resp, lastErr
}
