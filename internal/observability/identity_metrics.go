package observability

import (
	"errors"
	"time"

	"github.com/geocoder89/projecthub/internal/identity"
)

func (p *Prom) ObserveIdentityCall(op string, elapsed time.Duration, err error) {
	p.IdentityCallDuration.WithLabelValues(op, classifyIdentityErr(err)).Observe(elapsed.Seconds())
}

func (p *Prom) SetIdentityCircuitState(state string) {
	if state == "closed" {
		p.IdentityCircuitOpen.Set(0)
		return
	}
	p.IdentityCircuitOpen.Set(1)
}

func classifyIdentityErr(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, identity.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, identity.ErrForbidden):
		return "forbidden"
	case errors.Is(err, identity.ErrNotFound):
		return "not_found"
	case errors.Is(err, identity.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
