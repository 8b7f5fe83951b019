package relay

import "errors"

// errRateLimited is returned by Spawner.OpenRelay when the relay-spawn
// rate limiter has no tokens available.
var errRateLimited = errors.New("relay: spawn rate limit exceeded")
