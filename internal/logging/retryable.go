package logging

import (
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RetryableLogger routes go-retryablehttp logging through zerolog.
type RetryableLogger struct {
	component string
}

var _ retryablehttp.LeveledLogger = RetryableLogger{}

func NewRetryableLogger(component string) RetryableLogger {
	return RetryableLogger{component: component}
}

func (l RetryableLogger) Error(msg string, keysAndValues ...interface{}) {
	l.emit(log.Error(), msg, keysAndValues)
}

func (l RetryableLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(log.Info(), msg, keysAndValues)
}

func (l RetryableLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(log.Debug(), msg, keysAndValues)
}

func (l RetryableLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(log.Warn(), msg, keysAndValues)
}

func (l RetryableLogger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	if e == nil {
		return
	}
	if l.component != "" {
		e = e.Str("component", l.component)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if err, ok := kv[i+1].(error); ok {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
