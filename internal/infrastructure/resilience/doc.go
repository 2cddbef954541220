/*
Package resilience provides the circuit breaker that guards optional
outbound sinks such as the webhook.

# Usage

	breaker := resilience.New("webhook", resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Sink breaker changed state",
				zap.String("sink", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	err := breaker.Do(func() error {
		return post(msg)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                         Open
*/
package resilience
