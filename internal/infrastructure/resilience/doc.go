/*
Package resilience provides a circuit breaker for the CouchHTTP transport.

# Overview

A view or validation script may issue many synchronous requests in a
loop. When the database is unreachable every request would block for the
full transport timeout; the breaker fails those calls fast instead, and
lets one probe through after a cooldown.

# Usage

	breaker := resilience.New("couchhttp", resilience.Settings{
		Threshold: 5,
		Cooldown:  10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := breaker.Do(func() error {
		resp, err = send()
		return err
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[probe ok]-> Closed
	                                                        |
	                                                 [probe failed]
	                                                        v
	                                                       Open
*/
package resilience
