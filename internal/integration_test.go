package internal

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/sweeney/greenhouse-sensor/internal/controller"
	"github.com/sweeney/greenhouse-sensor/internal/counter"
	"github.com/sweeney/greenhouse-sensor/internal/csvlog"
	"github.com/sweeney/greenhouse-sensor/internal/endpoint"
	"github.com/sweeney/greenhouse-sensor/internal/gpio"
	"github.com/sweeney/greenhouse-sensor/internal/history"
	"github.com/sweeney/greenhouse-sensor/internal/mqtt"
	"github.com/sweeney/greenhouse-sensor/internal/nvm"
	"github.com/sweeney/greenhouse-sensor/internal/sensor"
	"github.com/sweeney/greenhouse-sensor/internal/status"
	"github.com/sweeney/greenhouse-sensor/internal/web"
)

const updateInterval = 5 * time.Minute

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// rig wires real components around fake hardware and a fake clock.
type rig struct {
	dir     string
	clk     *clocktesting.FakeClock
	store   *nvm.Bolt
	counter *counter.Counter
	inbox   *endpoint.Listener
	pub     *mqtt.FakePublisher
	hist    *history.Repository
	tracker *status.Tracker
	ctl     *controller.Controller
	lines   []*gpio.FakeLine
}

func newRig(t *testing.T, dir string, perFile uint64) *rig {
	t.Helper()
	r := &rig{
		dir: dir,
		clk: clocktesting.NewFakeClock(startTime),
		pub: mqtt.NewFakePublisher(),
	}

	store, err := nvm.OpenBolt(filepath.Join(dir, "nvm.db"), nvm.DefaultSize)
	if err != nil {
		t.Fatalf("open nvm: %v", err)
	}
	r.store = store
	r.counter = counter.NewWithPeriod(store, perFile)

	inbox, err := endpoint.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r.inbox = inbox

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	r.hist = hist

	r.tracker = status.NewTracker(r.clk, status.Config{UpdateInterval: updateInterval, ReadsPerSample: 3})

	devices := []sensor.Device{
		sensor.NewFakeDevice(sensor.Raw{Humidity: 60, Celsius: 20}),
		&sensor.FakeDevice{Steps: []sensor.FakeStep{{Err: sensor.ErrFakeRead}}},
	}
	var samplers []controller.Sampler
	for i, name := range []string{"Greenhouse", "Outside"} {
		line := gpio.NewFakeLine()
		r.lines = append(r.lines, line)
		samplers = append(samplers, sensor.NewSampler(name, line, devices[i], r.clk, sensor.Options{Logger: zerolog.Nop()}))
	}

	ctl, err := controller.New(controller.Config{
		ReadsPerSample: 3,
		UpdateInterval: updateInterval,
		LogDir:         filepath.Join(dir, "www"),
		LogPrefix:      "datalog",
	}, controller.Deps{
		Samplers: samplers,
		Inbox:    inbox,
		Counter:  r.counter,
		Log:      csvlog.NewWriter(),
		Sinks:    []controller.Sink{mqtt.Sink{Publisher: r.pub}, hist},
		Tracker:  r.tracker,
		Clock:    r.clk,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	r.ctl = ctl
	return r
}

func (r *rig) close() {
	r.inbox.Close()
	r.hist.Close()
	r.store.Close()
}

func (r *rig) tick(n int) {
	for i := 0; i < n; i++ {
		r.ctl.Tick(context.Background())
	}
}

// persistCycle runs Idle, Sampling and Persisting.
func (r *rig) persistCycle(t *testing.T) {
	t.Helper()
	if r.ctl.State() != controller.Idle {
		t.Fatalf("expected Idle before cycle, got %s", r.ctl.State())
	}
	r.tick(3)
	if r.ctl.State() != controller.Idle {
		t.Fatalf("expected Idle after cycle, got %s", r.ctl.State())
	}
}

func (r *rig) logFile(index uint64) string {
	return counter.FileName(filepath.Join(r.dir, "www"), "datalog", index)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// TestIntegrationFullFlow drives the controller through persists, a status
// request and a log rotation, then checks every output.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t, t.TempDir(), 2)
	defer r.close()

	// Startup persists immediately.
	r.persistCycle(t)

	lines := readLines(t, r.logFile(0))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], ", 60.00, 68.00, NaN, NaN") {
		t.Errorf("unexpected log line: %q", lines[0])
	}
	for i, l := range r.lines {
		if l.On {
			t.Errorf("sensor %d left powered", i)
		}
		if l.Pulses() != 3 {
			t.Errorf("sensor %d: expected 3 power pulses, got %d", i, l.Pulses())
		}
	}

	// A status request is held and answered with fresh readings.
	conn, err := net.Dial("tcp", r.inbox.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("temperature\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	for i := 0; r.ctl.State() == controller.Idle; i++ {
		if i > 100 {
			t.Fatal("request never accepted")
		}
		r.tick(1)
	}
	if !r.ctl.Pending().Respond {
		t.Fatal("expected a pending response")
	}
	r.tick(2)
	if r.ctl.State() != controller.Idle {
		t.Fatalf("expected Idle after response, got %s", r.ctl.State())
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	body, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	for _, want := range []string{
		"Current time:",
		"<br>Greenhouse Humidity (%): 60.00",
		"<br>Greenhouse Temperature: 68.00 °F",
		"<br>Outside Humidity (%): NaN",
		"Hits so far: 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("response missing %q:\n%s", want, body)
		}
	}

	// A response alone does not write the log.
	if got := len(readLines(t, r.logFile(0))); got != 1 {
		t.Errorf("expected 1 log line after response, got %d", got)
	}

	// Two more intervals: the second write rotates into file 1.
	for i := 0; i < 2; i++ {
		r.clk.Step(updateInterval + time.Second)
		r.persistCycle(t)
	}

	if got := len(readLines(t, r.logFile(0))); got != 2 {
		t.Errorf("file 0: expected 2 lines, got %d", got)
	}
	if got := len(readLines(t, r.logFile(1))); got != 1 {
		t.Errorf("file 1: expected 1 line, got %d", got)
	}

	iter, err := r.counter.CurrentIteration()
	if err != nil {
		t.Fatal(err)
	}
	if iter != 3 {
		t.Errorf("iteration: got %d, want 3", iter)
	}

	if len(r.pub.Records) != 3 {
		t.Errorf("expected 3 published records, got %d", len(r.pub.Records))
	}

	rows, err := r.hist.Recent(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Errorf("expected 6 history rows, got %d", len(rows))
	}

	snap := r.tracker.Snapshot()
	if snap.Iteration != 3 {
		t.Errorf("tracker iteration: got %d, want 3", snap.Iteration)
	}
	if snap.LogFile != r.logFile(1) {
		t.Errorf("tracker log file: got %q, want %q", snap.LogFile, r.logFile(1))
	}
	if snap.Hits != 1 {
		t.Errorf("tracker hits: got %d, want 1", snap.Hits)
	}
}

// TestIntegrationCounterSurvivesRestart reopens the store and checks the
// next record lands in the file the counter points at.
func TestIntegrationCounterSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	r := newRig(t, dir, 2)
	r.persistCycle(t)
	r.clk.Step(updateInterval + time.Second)
	r.persistCycle(t)
	r.close()

	r = newRig(t, dir, 2)
	defer r.close()

	iter, err := r.counter.CurrentIteration()
	if err != nil {
		t.Fatal(err)
	}
	if iter != 2 {
		t.Fatalf("iteration after restart: got %d, want 2", iter)
	}

	r.persistCycle(t)

	if got := len(readLines(t, r.logFile(0))); got != 2 {
		t.Errorf("file 0: expected 2 lines, got %d", got)
	}
	if got := len(readLines(t, r.logFile(1))); got != 1 {
		t.Errorf("file 1: expected 1 line, got %d", got)
	}
}

// TestIntegrationUnknownCommand checks that a bad command is answered
// without sampling.
func TestIntegrationUnknownCommand(t *testing.T) {
	r := newRig(t, t.TempDir(), counter.IterationsPerFile)
	defer r.close()
	r.persistCycle(t)

	conn, err := net.Dial("tcp", r.inbox.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("humidity\n"))

	done := make(chan string, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		body, _ := io.ReadAll(conn)
		done <- string(body)
	}()

	var body string
	for i := 0; body == ""; i++ {
		if i > 100 {
			t.Fatal("no reply to unknown command")
		}
		r.tick(1)
		if r.ctl.State() != controller.Idle {
			t.Fatalf("unknown command left Idle: %s", r.ctl.State())
		}
		select {
		case body = <-done:
		default:
		}
	}

	if body != "unknown command \"humidity\"\n" {
		t.Errorf("reply: got %q", body)
	}
}

// TestIntegrationWebReflectsController checks the HTTP server against the
// same tracker and history the controller writes.
func TestIntegrationWebReflectsController(t *testing.T) {
	r := newRig(t, t.TempDir(), counter.IterationsPerFile)
	defer r.close()
	r.persistCycle(t)

	srv := web.New(":0", r.tracker, r.hist, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatal(err)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	if sj.Status.State != "Idle" {
		t.Errorf("state: got %q, want Idle", sj.Status.State)
	}
	if sj.Status.Log.Iteration != 1 {
		t.Errorf("iteration: got %d, want 1", sj.Status.Log.Iteration)
	}
	if len(sj.Status.Readings) != 2 {
		t.Fatalf("readings: got %d, want 2", len(sj.Status.Readings))
	}
	if sj.Status.Readings[1].Humidity != nil {
		t.Error("expected null humidity for failed sensor")
	}

	resp, err = http.Get(ts.URL + "/history.json?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	var hj web.HistoryJSON
	if err := json.NewDecoder(resp.Body).Decode(&hj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	if len(hj.Rows) != 2 {
		t.Fatalf("history rows: got %d, want 2", len(hj.Rows))
	}
	if hj.Rows[0].Sensor != "Greenhouse" || *hj.Rows[0].Temperature != 68 {
		t.Errorf("unexpected first row: %+v", hj.Rows[0])
	}
}

// TestIntegrationPayloadFormat checks the MQTT payload of a persisted record.
func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(t, t.TempDir(), counter.IterationsPerFile)
	defer r.close()
	r.persistCycle(t)

	if len(r.pub.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(r.pub.Payloads))
	}

	var p mqtt.Payload
	if err := json.Unmarshal(r.pub.Payloads[0], &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(p.Greenhouse.Readings) != 2 {
		t.Fatalf("readings: got %d, want 2", len(p.Greenhouse.Readings))
	}
	if h := p.Greenhouse.Readings[0].Humidity; h == nil || *h != 60 {
		t.Errorf("humidity: got %v, want 60", h)
	}
	if p.Greenhouse.Unix != r.pub.Records[0].At.Unix() {
		t.Errorf("unix: got %d, want %d", p.Greenhouse.Unix, r.pub.Records[0].At.Unix())
	}
}
