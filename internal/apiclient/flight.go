package apiclient

import "sync"

// refreshOutcome is what every request parked behind a refresh receives.
type refreshOutcome struct {
	token string
	err   error
}

// ticket tells a request that just saw a 401 what to do next.
// Exactly one of the fields is meaningful:
//   - lead: this request owns the refresh and must call settle when done
//   - wait: a refresh is in progress; receive its outcome here
//   - current: the token the request carried was already replaced; replay with this one
type ticket struct {
	lead    bool
	wait    <-chan refreshOutcome
	current string
}

// refreshFlight is the in-flight refresh queue for one session.
//
// At most one refresh runs at a time: join decides lead-or-wait inside a
// single critical section. settle hands the same outcome to every waiter
// exactly once and empties the queue. Waiter channels are buffered, so a
// waiter that gave up on its own context never blocks settle.
type refreshFlight struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshOutcome

	// Token pair of the last successful refresh: a 401 for replaced is
	// recovered by replaying with issued instead of refreshing again.
	replaced string
	issued   string
}

func (f *refreshFlight) join(sentToken string) ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight {
		ch := make(chan refreshOutcome, 1)
		f.waiters = append(f.waiters, ch)
		return ticket{wait: ch}
	}
	if sentToken != "" && sentToken == f.replaced && f.issued != "" {
		return ticket{current: f.issued}
	}
	f.inFlight = true
	return ticket{lead: true}
}

// settle releases the flight and returns how many waiters were resolved.
// replaced is the token the refresh superseded; it is ignored on failure.
func (f *refreshFlight) settle(replaced string, out refreshOutcome) int {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.inFlight = false
	if out.err == nil && out.token != "" {
		f.replaced, f.issued = replaced, out.token
	} else {
		f.replaced, f.issued = "", ""
	}
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}
	return len(waiters)
}

func (f *refreshFlight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *refreshFlight) active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}
