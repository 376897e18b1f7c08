package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/qbridge"
	"github.com/theapemachine/qbridge/internal/bridge"
)

func newTestServer(limit qbridge.RateLimitConfig) *Server {
	cfg := qbridge.NewConfig()
	cfg.Seed = 5
	cfg.Workers = 2
	cfg.MaxQubits = 10

	b, err := bridge.New(context.Background(), cfg)
	So(err, ShouldBeNil)

	Reset(func() {
		So(b.Close(), ShouldBeNil)
	})

	return New(":0", b, qbridge.NewRateLimiter(limit))
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(rec.Body.Bytes(), &v), ShouldBeNil)
	return v
}

var unlimited = qbridge.RateLimitConfig{Burst: 1000, Refill: time.Millisecond}

func TestCircuitRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		s := newTestServer(unlimited)

		Convey("POST /circuit builds and caches a circuit", func() {
			rec := serve(s, http.MethodPost, "/circuit?qubits=3", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "application/json")

			built := decode[bridge.Descriptor](rec)
			So(built.Qubits, ShouldHaveLength, 3)

			rec = serve(s, http.MethodGet, "/circuit", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[bridge.Descriptor](rec), ShouldResemble, built)
		})

		Convey("GET /circuit builds one when nothing is cached", func() {
			rec := serve(s, http.MethodGet, "/circuit", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[bridge.Descriptor](rec).Qubits, ShouldHaveLength, bridge.PredictionQubits)
		})

		Convey("Bad qubit counts are client errors", func() {
			So(serve(s, http.MethodPost, "/circuit?qubits=many", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(s, http.MethodPost, "/circuit?qubits=40", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRunRoute(t *testing.T) {
	Convey("Given a server", t, func() {
		s := newTestServer(unlimited)

		Convey("It runs an internal circuit", func() {
			rec := serve(s, http.MethodPost, "/run?shots=200",
				`{"qubitCount": 2, "operations": [{"kind": "H", "qubits": [0]}, {"kind": "CNOT", "qubits": [0, 1]}]}`)
			So(rec.Code, ShouldEqual, http.StatusOK)

			envelope := decode[bridge.Envelope](rec)
			So(envelope.Status, ShouldEqual, "COMPLETED")
			So(envelope.Results.Total(), ShouldEqual, 200)
			So(envelope.Results["00"]+envelope.Results["11"], ShouldEqual, 200)
		})

		Convey("An empty body runs a fresh circuit", func() {
			rec := serve(s, http.MethodPost, "/run", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			envelope := decode[bridge.Envelope](rec)
			So(envelope.Metadata.Shots, ShouldEqual, 1024)

			for state := range envelope.Results {
				So(state, ShouldHaveLength, bridge.PredictionQubits)
			}
		})

		Convey("Invalid circuits are 400", func() {
			rec := serve(s, http.MethodPost, "/run", `{"qubitCount": 0, "operations": []}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[map[string]string](rec)["error"], ShouldContainSubstring, "qubitCount")
		})

		Convey("Registers past the limit are 413", func() {
			rec := serve(s, http.MethodPost, "/run", `{"qubitCount": 11, "operations": []}`)
			So(rec.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})
	})
}

func TestAnalyzeAndDevices(t *testing.T) {
	Convey("Given a server", t, func() {
		s := newTestServer(unlimited)

		Convey("POST /analyze returns indicators", func() {
			rec := serve(s, http.MethodPost, "/analyze", `{"results": {"00": 1024}}`)
			So(rec.Code, ShouldEqual, http.StatusOK)

			indicators := decode[qbridge.IndicatorSet](rec)
			So(indicators.Purity, ShouldEqual, 1)
			So(indicators.Fidelity, ShouldEqual, 1)
		})

		Convey("Anything without results gets the defaults", func() {
			rec := serve(s, http.MethodPost, "/analyze", `[]`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[qbridge.IndicatorSet](rec), ShouldResemble, qbridge.DefaultIndicators())
		})

		Convey("GET /devices lists the simulator", func() {
			rec := serve(s, http.MethodGet, "/devices", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			devices := decode[map[string][]qbridge.Device](rec)["devices"]
			So(devices, ShouldHaveLength, 1)
			So(devices[0].ID, ShouldEqual, qbridge.SimulatorDeviceID)
			So(devices[0].MaxQubits, ShouldEqual, 10)
		})

		Convey("GET /predict returns a fortune", func() {
			rec := serve(s, http.MethodGet, "/predict?span=week", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			prediction := decode[bridge.Prediction](rec)
			So(prediction.TimeSpan, ShouldEqual, "week")
			So(prediction.Fortune, ShouldBeBetweenOrEqual, 0, 1)
		})

		Convey("GET /metrics exposes the collectors", func() {
			serve(s, http.MethodPost, "/run?shots=10", `{"qubitCount": 1, "operations": []}`)

			rec := serve(s, http.MethodGet, "/metrics", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "qbridge_")
		})
	})
}

func TestRateLimit(t *testing.T) {
	Convey("Given a server with a burst of two", t, func() {
		s := newTestServer(qbridge.RateLimitConfig{Burst: 2, Refill: time.Hour})

		So(serve(s, http.MethodGet, "/devices", "").Code, ShouldEqual, http.StatusOK)
		So(serve(s, http.MethodGet, "/devices", "").Code, ShouldEqual, http.StatusOK)

		rec := serve(s, http.MethodGet, "/devices", "")
		So(rec.Code, ShouldEqual, http.StatusTooManyRequests)

		Convey("Health checks are never limited", func() {
			So(serve(s, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Rejections are counted and reported by the health check", func() {
			So(s.bridge.Metrics().ExportMetrics()["rate_limit_hits"], ShouldEqual, int64(1))

			health := decode[struct {
				Status  string         `json:"status"`
				Metrics map[string]any `json:"metrics"`
			}](serve(s, http.MethodGet, "/healthz", ""))

			So(health.Status, ShouldEqual, "ok")
			So(health.Metrics["rate_limit_hits"], ShouldEqual, float64(1))
			So(health.Metrics, ShouldContainKey, "worker_count")
		})
	})
}

func TestStatusOf(t *testing.T) {
	Convey("Given errors from the core", t, func() {
		So(statusOf(&qbridge.ValidationError{Field: "shots"}), ShouldEqual, http.StatusBadRequest)
		So(statusOf(&qbridge.ResourceError{Qubits: 30}), ShouldEqual, http.StatusRequestEntityTooLarge)
		So(statusOf(qbridge.ErrCircuitOpen), ShouldEqual, http.StatusServiceUnavailable)
		So(statusOf(context.DeadlineExceeded), ShouldEqual, http.StatusGatewayTimeout)
		So(statusOf(errors.New("boom")), ShouldEqual, http.StatusInternalServerError)
	})
}
