package logger

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	log Logger
}

// CronLogger adapts Logger to robfig/cron's logging interface
func CronLogger(log Logger) cron.Logger {
	return &cronLogger{log: log.With(String("component", "cron"))}
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, pairsToFields(keysAndValues)...)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(pairsToFields(keysAndValues), Error(err))
	c.log.Error(msg, fields...)
}

func pairsToFields(keysAndValues []interface{}) []Field {
	fields := make([]Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
