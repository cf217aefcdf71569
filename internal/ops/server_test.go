package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/orgbd/internal/audit"
	"github.com/nerrad567/orgbd/internal/controller"
	"github.com/nerrad567/orgbd/internal/infrastructure/config"
	"github.com/nerrad567/orgbd/internal/infrastructure/logging"
	"github.com/nerrad567/orgbd/internal/server"
)

type fakeSessions struct {
	sessions []server.SessionInfo
	stats    server.Stats
	addr     net.Addr
}

func (f *fakeSessions) Sessions() []server.SessionInfo { return f.sessions }
func (f *fakeSessions) Stats() server.Stats            { return f.stats }
func (f *fakeSessions) Addr() net.Addr                 { return f.addr }

type fakeAudit struct {
	filter audit.Filter
	result *audit.ListResult
	err    error
}

func (f *fakeAudit) Create(context.Context, *audit.AuditLog) error { return nil }

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	return f.result, f.err
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func testVirtual(t *testing.T) *controller.Virtual {
	t.Helper()
	v, err := controller.NewVirtual(controller.Description{
		Type: controller.DeviceLEDStrip,
		Name: "Desk Strip",
		Modes: []controller.Mode{
			{Name: "Direct", Value: 0, ColorMode: controller.ColorModePerLED},
		},
		Zones: []controller.Zone{
			{Name: "Strip", Type: controller.ZoneLinear, LEDsMin: 1, LEDsMax: 60, LEDsCount: 3},
		},
	})
	if err != nil {
		t.Fatalf("NewVirtual() error = %v", err)
	}
	return v
}

func testRegistry(t *testing.T) *controller.Registry {
	t.Helper()
	return controller.NewRegistry(testVirtual(t))
}

// opaqueController hides everything but the Controller methods.
type opaqueController struct{ controller.Controller }

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	deps := Deps{
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   testLogger(),
		Registry: testRegistry(t),
		Sessions: &fakeSessions{
			sessions: []server.SessionInfo{{ID: "ses-1", RemoteAddr: "127.0.0.1:5000", Frames: 4}},
			stats:    server.Stats{SessionsActive: 1, SessionsTotal: 3, Frames: 10},
			addr:     &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6742},
		},
		Version: "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding %s response: %v", path, err)
		}
	}
	return rec, body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func TestNewRequiresDeps(t *testing.T) {
	for name, deps := range map[string]Deps{
		"empty":       {},
		"no registry": {Logger: testLogger()},
		"no sessions": {Logger: testLogger(), Registry: controller.NewRegistry()},
	} {
		if _, err := New(deps); err == nil {
			t.Errorf("New(%s) error = nil, want error", name)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{
				"database": checkFunc(func(context.Context) error { return nil }),
			}
		})
		rec, body := get(t, s.Handler(), "/api/v1/health")
		expectStatus(t, rec, http.StatusOK)
		if body["status"] != "ok" {
			t.Errorf("status = %v, want ok", body["status"])
		}
		if body["version"] != "test" {
			t.Errorf("version = %v, want test", body["version"])
		}
		if body["devices"] != float64(1) {
			t.Errorf("devices = %v, want 1", body["devices"])
		}
		if body["listen"] != "127.0.0.1:6742" {
			t.Errorf("listen = %v, want 127.0.0.1:6742", body["listen"])
		}
		if want := map[string]any{"database": "ok"}; !reflect.DeepEqual(body["checks"], want) {
			t.Errorf("checks = %v, want %v", body["checks"], want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header not set")
		}
	})

	t.Run("failing check degrades", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{
				"mqtt": checkFunc(func(context.Context) error { return errors.New("mqtt: client not connected") }),
			}
		})
		rec, body := get(t, s.Handler(), "/api/v1/health")
		expectStatus(t, rec, http.StatusServiceUnavailable)
		if body["status"] != "degraded" {
			t.Errorf("status = %v, want degraded", body["status"])
		}
		if want := map[string]any{"mqtt": "mqtt: client not connected"}; !reflect.DeepEqual(body["checks"], want) {
			t.Errorf("checks = %v, want %v", body["checks"], want)
		}
	})

	t.Run("not listening", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) { d.Sessions = &fakeSessions{} })
		rec, body := get(t, s.Handler(), "/api/v1/health")
		expectStatus(t, rec, http.StatusOK)
		if body["listen"] != "" {
			t.Errorf("listen = %v, want empty", body["listen"])
		}
	})
}

func TestRequestIDPassthrough(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	s.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestDevices(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	t.Run("list", func(t *testing.T) {
		rec, body := get(t, h, "/api/v1/devices")
		expectStatus(t, rec, http.StatusOK)
		if body["count"] != float64(1) {
			t.Errorf("count = %v, want 1", body["count"])
		}
		devices, _ := body["devices"].([]any)
		if len(devices) != 1 {
			t.Fatalf("devices = %v, want one entry", body["devices"])
		}
		desc := devices[0].(map[string]any)["description"].(map[string]any)
		if desc["name"] != "Desk Strip" {
			t.Errorf("name = %v, want Desk Strip", desc["name"])
		}
	})

	t.Run("get", func(t *testing.T) {
		rec, body := get(t, h, "/api/v1/devices/0")
		expectStatus(t, rec, http.StatusOK)
		if body["index"] != float64(0) {
			t.Errorf("index = %v, want 0", body["index"])
		}
		desc := body["description"].(map[string]any)
		if leds, _ := desc["leds"].([]any); len(leds) != 3 {
			t.Errorf("leds = %v, want 3 entries", desc["leds"])
		}
	})

	t.Run("out of range", func(t *testing.T) {
		rec, body := get(t, h, "/api/v1/devices/5")
		expectStatus(t, rec, http.StatusNotFound)
		if body["code"] != ErrCodeNotFound {
			t.Errorf("code = %v, want %s", body["code"], ErrCodeNotFound)
		}
	})

	t.Run("bad index", func(t *testing.T) {
		for _, p := range []string{"/api/v1/devices/abc", "/api/v1/devices/-1", "/api/v1/devices/4294967296", "/api/v1/devices/x/state"} {
			if rec, _ := get(t, h, p); rec.Code != http.StatusBadRequest {
				t.Errorf("GET %s status = %d, want 400", p, rec.Code)
			}
		}
	})
}

func TestDeviceState(t *testing.T) {
	v := testVirtual(t)
	red := controller.RGB(255, 0, 0)
	if err := v.SetColorDescription(controller.ColorDescription([]controller.Color{red, red, red})); err != nil {
		t.Fatalf("SetColorDescription() error = %v", err)
	}
	if err := v.UpdateLEDs(); err != nil {
		t.Fatalf("UpdateLEDs() error = %v", err)
	}
	s := newTestServer(t, func(d *Deps) {
		d.Registry = controller.NewRegistry(v, opaqueController{testVirtual(t)})
	})
	h := s.Handler()

	t.Run("virtual device", func(t *testing.T) {
		rec, body := get(t, h, "/api/v1/devices/0/state")
		expectStatus(t, rec, http.StatusOK)
		if body["index"] != float64(0) {
			t.Errorf("index = %v, want 0", body["index"])
		}
		state := body["state"].(map[string]any)
		want := []any{float64(red), float64(red), float64(red)}
		if !reflect.DeepEqual(state["applied"], want) {
			t.Errorf("applied = %v, want %v", state["applied"], want)
		}
		if state["updates"] != float64(1) {
			t.Errorf("updates = %v, want 1", state["updates"])
		}
	})

	t.Run("controller without state", func(t *testing.T) {
		rec, body := get(t, h, "/api/v1/devices/1/state")
		expectStatus(t, rec, http.StatusNotFound)
		if body["code"] != ErrCodeNotFound {
			t.Errorf("code = %v, want %s", body["code"], ErrCodeNotFound)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		rec, _ := get(t, h, "/api/v1/devices/2/state")
		expectStatus(t, rec, http.StatusNotFound)
	})
}

func TestSessions(t *testing.T) {
	s := newTestServer(t, nil)
	rec, body := get(t, s.Handler(), "/api/v1/sessions")
	expectStatus(t, rec, http.StatusOK)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	sess := body["sessions"].([]any)[0].(map[string]any)
	if sess["id"] != "ses-1" {
		t.Errorf("id = %v, want ses-1", sess["id"])
	}
	if sess["frames"] != float64(4) {
		t.Errorf("frames = %v, want 4", sess["frames"])
	}
}

func TestAudit(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		rec, body := get(t, s.Handler(), "/api/v1/audit")
		expectStatus(t, rec, http.StatusServiceUnavailable)
		if body["code"] != ErrCodeUnavailable {
			t.Errorf("code = %v, want %s", body["code"], ErrCodeUnavailable)
		}
	})

	t.Run("filters forwarded", func(t *testing.T) {
		repo := &fakeAudit{result: &audit.ListResult{
			Logs:  []audit.AuditLog{{ID: "aud-1", Action: audit.ActionSessionClosed, SessionID: "ses-1", CreatedAt: time.Now()}},
			Total: 1, Limit: 10, Offset: 5,
		}}
		s := newTestServer(t, func(d *Deps) { d.Audit = repo })

		rec, body := get(t, s.Handler(), "/api/v1/audit?action=session_closed&session_id=ses-1&limit=10&offset=5")
		expectStatus(t, rec, http.StatusOK)
		want := audit.Filter{Action: "session_closed", SessionID: "ses-1", Limit: 10, Offset: 5}
		if repo.filter != want {
			t.Errorf("filter = %+v, want %+v", repo.filter, want)
		}
		if body["total"] != float64(1) {
			t.Errorf("total = %v, want 1", body["total"])
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) { d.Audit = &fakeAudit{} })
		rec, _ := get(t, s.Handler(), "/api/v1/audit?limit=ten")
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("repository error", func(t *testing.T) {
		s := newTestServer(t, func(d *Deps) { d.Audit = &fakeAudit{err: errors.New("disk full")} })
		rec, body := get(t, s.Handler(), "/api/v1/audit")
		expectStatus(t, rec, http.StatusInternalServerError)
		if body["code"] != ErrCodeInternal {
			t.Errorf("code = %v, want %s", body["code"], ErrCodeInternal)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("absent without gatherer", func(t *testing.T) {
		s := newTestServer(t, nil)
		rec, _ := get(t, s.Handler(), "/metrics")
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("serves registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m, err := server.NewMetrics(reg)
		if err != nil || m == nil {
			t.Fatalf("NewMetrics() = %v, %v", m, err)
		}

		s := newTestServer(t, func(d *Deps) { d.Gatherer = reg })
		rec, _ := get(t, s.Handler(), "/metrics")
		expectStatus(t, rec, http.StatusOK)
		if !strings.Contains(rec.Body.String(), "orgbd_sessions_active") {
			t.Error("metrics output lacks orgbd_sessions_active")
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	expectStatus(t, rec, http.StatusInternalServerError)
}

func TestStartAndClose(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.Config = config.OpsConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}}
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Addr() == nil {
		t.Fatal("Addr() = nil after Start")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if resp, err := http.Get("http://" + s.Addr().String() + "/api/v1/health"); err == nil {
		resp.Body.Close()
		t.Error("GET after Close succeeded")
	}
}

func TestCloseNotStarted(t *testing.T) {
	s := newTestServer(t, nil)
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if s.Addr() != nil {
		t.Errorf("Addr() = %v, want nil", s.Addr())
	}
}
