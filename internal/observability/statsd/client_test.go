package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", " job/metric ", "job_metric"},
		{"", "foo..bar", "foo.bar"},
		{"alert_worker", "alert_check.processed", "alert_worker.alert_check.processed"},
		{"alert_worker", "..", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), "metricName(%q, %q)", tt.prefix, tt.name)
	}
}

func TestLine_TagsMergedAndSorted(t *testing.T) {
	c, err := NewClient(Config{Prefix: " .alert_worker. ", GlobalTags: map[string]string{"env": "prod", " service ": " worker "}})
	require.NoError(t, err)

	got := c.line("job.transition", "1", "c", map[string]string{"env": "stage", "": "ignored", "result": " success "})
	assert.Equal(t, "alert_worker.job.transition:1|c|#env:stage,result:success,service:worker", got)
}

func TestDisabledClientDrops(t *testing.T) {
	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil)
	require.NoError(t, c.Close())

	var nilClient *Client
	nilClient.Gauge("x", 1, nil)
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
}

func TestClientWritesDatagrams(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "aw"})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	c.Timing("alert_check.duration", 1500*time.Microsecond, map[string]string{"result": "success"})

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "aw.alert_check.duration:1.5|ms|#result:success", strings.TrimSpace(string(buf[:n])))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	tags := map[string]string{"a": "b"}
	r.Count("c", 2, tags)
	tags["a"] = "mutated"
	r.Gauge("g", 0.5, nil)
	r.Timing("t", time.Second, nil)

	require.Len(t, r.Samples(), 3)
	c := r.Named("c")
	require.Len(t, c, 1)
	assert.Equal(t, "b", c[0].Tags["a"])
	assert.InDelta(t, 1000.0, r.Named("t")[0].Value, 0.001)
}
