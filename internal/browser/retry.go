package browser

import "time"

// attempt runs fn up to tries times, sleeping backoff between failures, and
// returns the last error when every attempt fails. Click and type paths share
// this one combinator instead of duplicating their retry loops.
func attempt(tries int, backoff time.Duration, fn func() error) error {
	if tries < 1 {
		tries = 1
	}
	var err error
	for i := 0; i < tries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < tries-1 && backoff > 0 {
			time.Sleep(backoff)
		}
	}
	return err
}

// waitTrue polls probe every interval until it reports true or deadline
// passes. The first probe runs immediately.
func waitTrue(deadline time.Time, interval time.Duration, probe func() bool) bool {
	for {
		if probe() {
			return true
		}
		if time.Now().Add(interval).After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
