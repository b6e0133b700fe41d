// Package fetch holds the HTTP plumbing shared by the outbound clients:
// the JSON-RPC transport and the price API both go through NewRetryClient.
package fetch

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// Default retry schedule for outbound calls
const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 3 * time.Second
)

// NewRetryClient creates a new HTTP client with retry capabilities.
// Retry attempts are logged at debug level through logrus.
func NewRetryClient(retryMax int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = DefaultRetryWaitMin
	c.RetryWaitMax = DefaultRetryWaitMax
	c.Logger = leveledLogger{entry: logrus.WithField("component", "http")}
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
// with an overall per-request timeout. A zero timeout leaves it unbounded.
func StandardClient(retryClient *retryablehttp.Client, timeout time.Duration) *http.Client {
	c := retryClient.StandardClient()
	c.Timeout = timeout
	return c
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	entry *logrus.Entry
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l leveledLogger) with(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.entry.WithFields(fields)
}
