package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/qbridge"
)

type offlineBackend struct{}

func (offlineBackend) Name() string      { return "remote" }
func (offlineBackend) Provider() string  { return "remote_provider" }
func (offlineBackend) IsSimulator() bool { return false }

func (offlineBackend) Device() qbridge.Device {
	return qbridge.Device{ID: "quantum_computer", Name: "Remote device", Type: "quantum", Available: true, MaxQubits: 10}
}

func (offlineBackend) Execute(ctx context.Context, c *qbridge.Circuit, shots int) (qbridge.Histogram, error) {
	return nil, errors.New("device offline")
}

func newTestConfig() *qbridge.Config {
	cfg := qbridge.NewConfig()
	cfg.Seed = 11
	cfg.Workers = 2
	cfg.MaxQubits = 12
	cfg.Retry = qbridge.RetryConfig{MaxAttempts: 2, Initial: time.Millisecond}
	cfg.JobTimeout = 5 * time.Second
	return cfg
}

func newTestBridge(cfg *qbridge.Config, opts ...Option) *Bridge {
	b, err := New(context.Background(), cfg, opts...)
	So(err, ShouldBeNil)

	Reset(func() {
		So(b.Close(), ShouldBeNil)
	})

	return b
}

func TestBuildCircuit(t *testing.T) {
	Convey("Given a bridge", t, func() {
		b := newTestBridge(newTestConfig())

		Convey("Built circuits become the last circuit", func() {
			d, err := b.BuildCircuit(4)
			So(err, ShouldBeNil)
			So(d.Qubits, ShouldHaveLength, 4)
			So(d.Metadata.Description, ShouldEqual, "quantum circuit")

			last, err := b.LastCircuit()
			So(err, ShouldBeNil)
			So(last, ShouldResemble, d)
		})

		Convey("Rotation angles are kept in the descriptor", func() {
			d, err := b.BuildCircuit(2)
			So(err, ShouldBeNil)

			rz := d.Gates[len(d.Gates)-3]
			So(rz.Name, ShouldEqual, "RZ")
			So(rz.Params, ShouldHaveLength, 1)
			So(rz.Params[0], ShouldBeBetweenOrEqual, 0, 2*3.141592653589793)
		})

		Convey("Registers past the limit are rejected", func() {
			_, err := b.BuildCircuit(13)
			So(qbridge.IsValidation(err), ShouldBeTrue)

			_, err = b.BuildCircuit(0)
			So(qbridge.IsValidation(err), ShouldBeTrue)
		})

		Convey("An empty cache yields a fresh 5-qubit circuit", func() {
			d, err := b.LastCircuit()
			So(err, ShouldBeNil)
			So(d.Qubits, ShouldHaveLength, PredictionQubits)

			again, err := b.LastCircuit()
			So(err, ShouldBeNil)
			So(again, ShouldResemble, d)
		})
	})

	Convey("Given a bridge that cannot build 5-qubit circuits", t, func() {
		cfg := newTestConfig()
		cfg.MaxQubits = 4
		b := newTestBridge(cfg)

		d, err := b.LastCircuit()
		So(err, ShouldBeNil)
		So(d.Metadata.Description, ShouldEqual, "default quantum circuit")
		So(d.Qubits, ShouldHaveLength, 3)
	})
}

func TestRunComputation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bridge on the simulator", t, func() {
		b := newTestBridge(newTestConfig())

		Convey("A built descriptor runs as is", func() {
			d, err := b.BuildCircuit(3)
			So(err, ShouldBeNil)

			raw, err := json.Marshal(d)
			So(err, ShouldBeNil)

			envelope, err := b.RunComputation(ctx, raw, 500)
			So(err, ShouldBeNil)

			So(strings.HasPrefix(envelope.JobID, "job_"), ShouldBeTrue)
			So(envelope.Status, ShouldEqual, "COMPLETED")
			So(envelope.Results.Total(), ShouldEqual, 500)
			So(envelope.Metadata.Device, ShouldEqual, qbridge.SimulatorDeviceID)
			So(envelope.Metadata.Shots, ShouldEqual, 500)
			So(envelope.Metadata.RealQuantum, ShouldBeFalse)
			So(envelope.Metadata.Provider, ShouldEqual, "local")

			for state := range envelope.Results {
				So(state, ShouldHaveLength, 3)
			}
		})

		Convey("Internal circuits run with the default shot count", func() {
			envelope, err := b.RunComputation(ctx, []byte(`{"num_qubits": 2, "operations": [{"name": "x", "qubits": [0]}]}`), 0)
			So(err, ShouldBeNil)
			So(envelope.Results, ShouldResemble, qbridge.Histogram{"00": 1024})
		})

		Convey("Malformed circuits are validation errors", func() {
			_, err := b.RunComputation(ctx, []byte(`{"qubitCount": 1, "operations": [{"kind": "H", "qubits": [4]}]}`), 10)
			So(qbridge.IsValidation(err), ShouldBeTrue)
		})

		Convey("The envelope analyzes back to indicators", func() {
			envelope, err := b.RunComputation(ctx, []byte(`{"qubitCount": 1, "operations": []}`), 64)
			So(err, ShouldBeNil)

			raw, err := json.Marshal(envelope)
			So(err, ShouldBeNil)

			indicators, err := b.AnalyzeResults(raw)
			So(err, ShouldBeNil)
			So(indicators.Stability, ShouldEqual, 1)
			So(indicators.Entropy, ShouldEqual, 0)
		})
	})
}

func TestListDevices(t *testing.T) {
	Convey("Given a bridge with a remote backend", t, func() {
		b := newTestBridge(newTestConfig(), WithBackends(offlineBackend{}))

		devices := b.ListDevices()

		So(devices, ShouldHaveLength, 2)
		So(devices[0].ID, ShouldEqual, "quantum_computer")
		So(devices[1].ID, ShouldEqual, qbridge.SimulatorDeviceID)
		So(devices[1].MaxQubits, ShouldEqual, 12)
	})
}

func TestPredict(t *testing.T) {
	ctx := context.Background()

	Convey("Given a bridge on the simulator", t, func() {
		b := newTestBridge(newTestConfig())

		prediction := b.Predict(ctx, "")

		So(prediction.Error, ShouldBeFalse)
		So(prediction.Message, ShouldBeEmpty)
		So(prediction.TimeSpan, ShouldEqual, "day")
		So(prediction.Fortune, ShouldBeBetweenOrEqual, 0, 1)
		So(prediction.UsingRealQuantum, ShouldBeFalse)
		So(prediction.QuantumProvider, ShouldEqual, "local")

		Convey("The prediction circuit is cached", func() {
			d, err := b.LastCircuit()
			So(err, ShouldBeNil)
			So(d.Qubits, ShouldHaveLength, PredictionQubits)
		})
	})

	Convey("Given a bridge routed to an offline backend", t, func() {
		cfg := newTestConfig()
		cfg.Backend = "remote"
		b := newTestBridge(cfg, WithBackends(offlineBackend{}))

		prediction := b.Predict(ctx, "week")

		Convey("The simulator answers instead", func() {
			So(prediction.Error, ShouldBeFalse)
			So(prediction.TimeSpan, ShouldEqual, "week")
			So(prediction.QuantumProvider, ShouldEqual, "local")
			So(prediction.Indicators.Entanglement, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a bridge too small for any prediction circuit", t, func() {
		cfg := newTestConfig()
		cfg.MaxQubits = 2
		b := newTestBridge(cfg)

		prediction := b.Predict(ctx, "month")

		Convey("It falls back to uniform results", func() {
			So(prediction.Error, ShouldBeFalse)
			So(prediction.Message, ShouldContainSubstring, "backup circuit")
			So(prediction.Message, ShouldContainSubstring, "uniform results")
			So(prediction.Indicators.Stability, ShouldEqual, 0.25)
			So(prediction.Indicators.Entanglement, ShouldEqual, 0.25)
		})
	})

	Convey("Given a cancelled caller", t, func() {
		b := newTestBridge(newTestConfig())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		prediction := b.Predict(cancelled, "year")

		So(prediction.Error, ShouldBeTrue)
		So(prediction.Fortune, ShouldEqual, 0.5)
		So(prediction.Indicators, ShouldResemble, qbridge.DefaultIndicators())
		So(prediction.Message, ShouldEqual, context.Canceled.Error())
	})
}

func TestFortune(t *testing.T) {
	Convey("Given extreme indicators", t, func() {
		ones := qbridge.IndicatorSet{Coherence: 1, Entanglement: 1, Stability: 1, Fidelity: 1}

		So(Fortune(1, ones), ShouldAlmostEqual, 1, 1e-12)
		So(Fortune(0, qbridge.IndicatorSet{}), ShouldEqual, 0)
		So(Fortune(0.5, qbridge.DefaultIndicators()), ShouldAlmostEqual, 0.5, 1e-12)

		Convey("Out-of-range inputs are clamped", func() {
			So(Fortune(5, ones), ShouldEqual, 1)
			So(Fortune(-5, qbridge.IndicatorSet{}), ShouldEqual, 0)
		})
	})
}
