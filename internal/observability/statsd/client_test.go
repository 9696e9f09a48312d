package statsd

import (
	"net"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	client := &Client{prefix: "clearpix"}
	tests := map[string]string{
		" job.attempt ": "clearpix.job.attempt",
		"multi space":   "clearpix.multi_space",
		".trimmed.":     "clearpix.trimmed",
		"":              "",
		"  ":            "",
	}
	for input, want := range tests {
		if got := client.metricName(input); got != want {
			t.Fatalf("metricName(%q) = %q, want %q", input, got, want)
		}
	}

	bare := &Client{}
	if got := bare.metricName("job.attempt"); got != "job.attempt" {
		t.Fatalf("metricName without prefix = %q", got)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " engine ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	got := formatTags(global, local)
	want := "|#env:stage,result:success,service:engine"
	if got != want {
		t.Fatalf("formatTags mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := formatTags(nil, nil); got != "" {
		t.Fatalf("formatTags(nil, nil) = %q, want empty string", got)
	}
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		1:      "1",
		1.5:    "1.5",
		0.25:   "0.25",
		1234.0: "1234",
	}
	for input, want := range tests {
		if got := formatFloat(input); got != want {
			t.Fatalf("formatFloat(%v) = %q, want %q", input, got, want)
		}
	}
}

func TestDisabledClientIsNoOp(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	// Must not panic or dial anything.
	client.Count("job.attempt", 1, nil)
	client.Gauge("job.retries", 2, nil)
	client.Timing("job.attempt_duration", time.Second, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	var nilClient *Client
	nilClient.Count("job.attempt", 1, nil)
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close error: %v", err)
	}
}

func TestClientEmitsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "clearpix",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("job.terminal", 1, map[string]string{"status": "completed"})

	if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	got := string(buf[:n])
	want := "clearpix.job.terminal:1|c|#env:test,status:completed"
	if got != want {
		t.Fatalf("metric line mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestCloseStopsEmission(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String()})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	// Writes after Close are dropped silently.
	client.Count("job.terminal", 1, nil)
}
