package bridge

import (
	"strings"
	"time"

	"github.com/theapemachine/qbridge"
)

const defaultSpan = "day"

// Prediction is the fortune derived from one run of the prediction circuit.
type Prediction struct {
	Fortune          float64              `json:"fortune"`
	Indicators       qbridge.IndicatorSet `json:"indicators"`
	Timestamp        string               `json:"timestamp"`
	TimeSpan         string               `json:"time_span"`
	UsingRealQuantum bool                 `json:"usingRealQuantum"`
	QuantumProvider  string               `json:"quantumProvider"`
	Error            bool                 `json:"error,omitempty"`
	Message          string               `json:"message,omitempty"`
}

/*
Fortune blends a uniform base draw with the indicators: 30% base and 70% a
weighted mix of coherence, entanglement, stability and fidelity, clamped to
[0, 1].
*/
func Fortune(base float64, indicators qbridge.IndicatorSet) float64 {
	influence := 0.3*indicators.Coherence +
		0.2*indicators.Entanglement +
		0.3*indicators.Stability +
		0.2*indicators.Fidelity

	return clamp01(0.3*base + 0.7*influence)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// failedPrediction is returned when the prediction was abandoned outright.
func failedPrediction(span string, now time.Time, err error) *Prediction {
	return &Prediction{
		Fortune:         0.5,
		Indicators:      qbridge.DefaultIndicators(),
		Timestamp:       now.Format(time.RFC3339Nano),
		TimeSpan:        span,
		QuantumProvider: "local",
		Error:           true,
		Message:         err.Error(),
	}
}

// notes collects the fallbacks a prediction went through.
type notes []string

func (n *notes) add(note string) {
	*n = append(*n, note)
}

func (n notes) String() string {
	return strings.Join(n, "; ")
}
