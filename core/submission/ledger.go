package submission

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// ledger is the server's record of every challenge that reached Confirm. A challenge copied out of
// an old session cookie is checked against it, so the cookie alone cannot reset attempts or reuse a code.
type ledger struct {
	mu      sync.Mutex
	records *cache.Cache
}

type challengeRecord struct {
	attempts int
	consumed bool
}

func newLedger(ttl time.Duration) *ledger {
	return &ledger{records: cache.New(ttl, 2*ttl)}
}

// update runs fn on the record for id under the ledger lock and stores the result.
func (l *ledger) update(id string, fn func(rec *challengeRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := challengeRecord{}
	if cached, ok := l.records.Get(id); ok {
		rec = cached.(challengeRecord)
	}
	fn(&rec)
	l.records.SetDefault(id, rec)
}
