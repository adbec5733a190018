package healthcheck

import "github.com/btcsuite/btclog"

// log is this package's sub-logger, disabled until UseLogger is called by
// whatever wires a Monitor up (see gossip/health.go).
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by Monitor/Observation.
func UseLogger(logger btclog.Logger) {
	log = logger
}
