package asyncronaut

import "time"

// Clock supplies wall-clock timestamps. Queues and pools accept one via
// their options so tests can control time-based bookkeeping.
type Clock func() time.Time
