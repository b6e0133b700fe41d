package fetch

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryClient_Defaults(t *testing.T) {
	c := NewRetryClient(DefaultRetryMax)
	assert.Equal(t, DefaultRetryMax, c.RetryMax)
	assert.Equal(t, DefaultRetryWaitMin, c.RetryWaitMin)
	assert.Equal(t, DefaultRetryWaitMax, c.RetryWaitMax)
}

func TestStandardClient_RetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	retry := NewRetryClient(3)
	retry.RetryWaitMin = time.Millisecond
	retry.RetryWaitMax = 2 * time.Millisecond

	client := StandardClient(retry, 5*time.Second)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestLeveledLogger_Fields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	l := leveledLogger{entry: logrus.NewEntry(logger)}

	l.Warn("retrying", "url", "http://node", "attempt", 2, 42, "ignored", "dangling")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "retrying", entry.Message)
	assert.Equal(t, "http://node", entry.Data["url"])
	assert.Equal(t, 2, entry.Data["attempt"])
	assert.Len(t, entry.Data, 2)
}
