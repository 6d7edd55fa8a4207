package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/cmd/server/middleware"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
	"github.com/TFMV/cachewatch/pkg/services"
)

// zlog adapts zerolog to the key/value Logger of handlers and services.
type zlog struct {
	logger zerolog.Logger
}

func newLogger(logger zerolog.Logger, component string) zlog {
	return zlog{logger: logger.With().Str("component", component).Logger()}
}

func (l zlog) Debug(msg string, kv ...interface{}) { l.log(zerolog.DebugLevel, msg, kv) }
func (l zlog) Info(msg string, kv ...interface{})  { l.log(zerolog.InfoLevel, msg, kv) }
func (l zlog) Warn(msg string, kv ...interface{})  { l.log(zerolog.WarnLevel, msg, kv) }
func (l zlog) Error(msg string, kv ...interface{}) { l.log(zerolog.ErrorLevel, msg, kv) }

func (l zlog) log(level zerolog.Level, msg string, kv []interface{}) {
	event := l.logger.WithLevel(level)
	if event == nil {
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			event.AnErr(key, v)
		case time.Duration:
			event.Dur(key, v)
		default:
			event.Interface(key, v)
		}
	}
	event.Msg(msg)
}

// Services and middleware declare their own Timer; the collector is shared.

type serviceMetrics struct{ metrics.Collector }

func (m serviceMetrics) StartTimer(name string) services.Timer {
	return serviceTimer{m.Collector.StartTimer(name)}
}

type serviceTimer struct{ metrics.Timer }

func (t serviceTimer) Stop() time.Duration {
	return time.Duration(t.Timer.Stop() * float64(time.Second))
}

type middlewareMetrics struct{ metrics.Collector }

func (m middlewareMetrics) StartTimer(name string) middleware.Timer {
	return m.Collector.StartTimer(name)
}
