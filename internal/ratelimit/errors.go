package ratelimit

import "github.com/rjalexa/taskbroker/internal/brokererr"

// ErrTimeout is returned by Acquire when the requested tokens could not be
// granted before the caller's wait budget elapsed (§4.3, §7).
var ErrTimeout = brokererr.ErrRateLimitTimeout

// ErrUninitialized is returned when Acquire is called before EnsureBucket
// has ever seeded rate_limit:bucket for this deployment.
var ErrUninitialized = brokererr.New(brokererr.Internal, "rate limit bucket not initialized")
