package proxy

import "log/slog"

// attachDefaultLogging wires slog-based observers for the two events the
// core emits: informational for connection lifecycle, error-level for
// request failures. Verbose adds per-connection byte counters to the close
// line.
func attachDefaultLogging(bus *eventBus, verbose bool) {
	bus.OnRequestFailed(func(evt RequestFailedEvent) {
		logger := slog.Default().With("in", "proxy.Dispatcher")
		if evt.Request != nil {
			logger = logger.With("method", evt.Request.Method, "host", evt.Request.Host)
		}
		logger.Error("request failed", "error", evt.Error)
	})

	bus.OnConnectionClosed(func(evt ConnectionClosedEvent) {
		logger := slog.Default().With("in", "proxy.ConnectionRegistry", "connectionId", evt.ConnectionID)
		if !verbose {
			logger.Info("connection closed")
			return
		}
		if !evt.HasStats {
			logger.Info("connection closed", "stats", "none")
			return
		}
		logger.Info("connection closed",
			"srcTxBytes", evt.Stats.SrcTxBytes,
			"srcRxBytes", evt.Stats.SrcRxBytes,
			"trgTxBytes", evt.Stats.TrgTxBytes,
			"trgRxBytes", evt.Stats.TrgRxBytes,
		)
	})
}
