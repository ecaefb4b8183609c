package limiter

// Result is the outcome of a Consume or Check call.
type Result struct {
	// Allowed reports the admission decision. It is true for an admitted
	// check even though nothing was consumed.
	Allowed bool `json:"allowed"`

	Limit       int64 `json:"limit"`
	Consumed    int64 `json:"consumed"`
	Remaining   int64 `json:"remaining"`
	Exceeded    int64 `json:"exceeded"`
	WasConsumed bool  `json:"was_consumed"`
}

func buildResult(limit, consumed int64, wasConsumed bool) Result {
	return Result{
		Limit:       limit,
		Consumed:    consumed,
		Remaining:   max(0, limit-consumed),
		Exceeded:    max(0, consumed-limit),
		WasConsumed: wasConsumed,
	}
}

func admitted(limit, consumed int64, wasConsumed bool) (Result, error) {
	r := buildResult(limit, consumed, wasConsumed)
	r.Allowed = true
	return r, nil
}

func rejected(limit, consumed int64) (Result, error) {
	return buildResult(limit, consumed, false), ErrQuotaExceeded
}
