package gojaremote

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// releaseWarnRates bounds how often a release failure with the same message
// is logged.
var releaseWarnRates = map[time.Duration]int{
	time.Second: 1,
	time.Minute: 10,
}

// releaseLogger logs release failures at warning level, rate limited per
// error message. Release failures are otherwise swallowed: disposal is
// best-effort once the host has given up the handle.
type releaseLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func newReleaseLogger(logger *logiface.Logger[logiface.Event]) *releaseLogger {
	return &releaseLogger{
		logger:  logger,
		limiter: catrate.NewLimiter(releaseWarnRates),
	}
}

func (x *releaseLogger) failed(id RefID, err error) {
	if x == nil || x.logger == nil || err == nil {
		return
	}
	if _, ok := x.limiter.Allow(err.Error()); !ok {
		return
	}
	x.logger.Warning().
		Uint64(`ref`, uint64(id)).
		Err(err).
		Log(`release failed`)
}

func logCallFailed(logger *logiface.Logger[logiface.Event], member string, kind string, err error) {
	if logger == nil {
		return
	}
	b := logger.Debug()
	if kind != `` {
		b = b.Str(`kind`, kind)
	}
	b.Str(`member`, member).
		Err(err).
		Log(`remote call failed`)
}
