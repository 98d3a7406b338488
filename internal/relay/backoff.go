package relay

import (
	"math/rand/v2"
	"time"
)

// backoff grows the idle delay after failed batches: base doubled per
// consecutive failure, capped at max, with up to a quarter of jitter added.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func (b backoff) delay(failures int) time.Duration {
	d := b.base
	for i := 0; i < failures && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int64N(quarter))
	}
	return d
}
