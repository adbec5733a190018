package transport

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// NewRotatingBackend builds a btclog.Backend that writes to both stdout
// and a rolling log file at logFile, the way lnd's own daemon logging
// splits between an operator's terminal and a bounded on-disk history.
// The returned close func must be called to flush and release the file.
func NewRotatingBackend(logFile string) (btclog.Backend, func() error, error) {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, nil, err
	}

	return btclog.NewBackend(io.MultiWriter(os.Stdout, r)), r.Close, nil
}
