package qbridge

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/theapemachine/errnie"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// entanglementStates is the distinct-state count at which entanglement saturates.
const entanglementStates = 16

// BlochAngles are the polar and azimuthal angles of the summary Bloch vector.
type BlochAngles struct {
	Theta float64 `json:"theta"`
	Phi   float64 `json:"phi"`
}

/*
IndicatorSet is the fixed set of scalar statistics derived from a measurement
histogram. The JSON names are consumed by front ends and must not change.
*/
type IndicatorSet struct {
	Entanglement   float64     `json:"entanglement"`
	Coherence      float64     `json:"coherence"`
	Uncertainty    float64     `json:"uncertainty"`
	Energy         float64     `json:"energy"`
	Stability      float64     `json:"stability"`
	Entropy        float64     `json:"entropy"`
	EstimatedPhase float64     `json:"estimated_phase"`
	Purity         float64     `json:"purity"`
	Interference   float64     `json:"interference"`
	Fidelity       float64     `json:"fidelity"`
	BlochAngles    BlochAngles `json:"bloch_angles"`
}

// DefaultIndicators is the set reported when a histogram carries no signal.
func DefaultIndicators() IndicatorSet {
	return IndicatorSet{
		Entanglement: 0.5,
		Coherence:    0.5,
		Uncertainty:  0.5,
		Energy:       0,
		Stability:    0.5,
		Entropy:      0.5,
		Purity:       0.5,
		Fidelity:     0.5,
		BlochAngles:  BlochAngles{Theta: math.Pi / 2},
	}
}

/*
Analyze reduces a histogram to its IndicatorSet. An empty histogram or one
whose counts sum to zero yields DefaultIndicators and a nil error; negative
counts are a *ValidationError.
*/
func Analyze(h Histogram) (IndicatorSet, error) {
	if err := h.Validate(); err != nil {
		return IndicatorSet{}, err
	}

	total := h.Total()
	if len(h) == 0 || total == 0 {
		errnie.Info("analyzer: histogram carries no counts, using default indicators")
		return DefaultIndicators(), nil
	}

	states := h.States()
	probs := make([]float64, len(states))
	for i, state := range states {
		probs[i] = float64(h[state]) / float64(total)
	}

	var (
		distinct = len(states)
		entropy  float64
		stddev   float64
	)

	if distinct > 1 {
		entropy = stat.Entropy(probs) / math.Ln2
		_, stddev = stat.PopMeanStdDev(probs, nil)
	}

	indicators := IndicatorSet{
		Entanglement: math.Min(1, float64(distinct)/entanglementStates),
		Uncertainty:  entropy,
		Entropy:      entropy,
		Purity:       1 - entropy,
		Stability:    floats.Max(probs),
		BlochAngles:  BlochAngles{Theta: math.Pi * entropy},
	}
	indicators.Fidelity = indicators.Stability

	if distinct > 1 {
		indicators.Coherence = 1 - stddev
		indicators.Interference = 2*stddev - 1
	}

	if mean, width, ok := weightedBasisMean(h, total); ok {
		indicators.Energy = 2*mean/math.Exp2(float64(width-1)) - 1

		if mean > 0 {
			indicators.EstimatedPhase = math.Mod(mean, 2*math.Pi)
			_, frac := math.Modf(mean)
			indicators.BlochAngles.Phi = 2 * math.Pi * frac
		}
	}

	return indicators, nil
}

/*
weightedBasisMean returns Σ p_s·v_s over the keys that are pure binary, with
v_s the key read as an unsigned integer, along with the widest such key.
ok is false when no key parses.
*/
func weightedBasisMean(h Histogram, total int) (mean float64, width int, ok bool) {
	for _, state := range h.States() {
		idx, err := ParseBitstring(state)
		if err != nil {
			continue
		}

		ok = true
		width = max(width, len(state))
		mean += float64(idx) * float64(h[state]) / float64(total)
	}

	return mean, width, ok
}

/*
AnalyzeEnvelope analyzes the "results" member of a JSON result envelope. It
answers with DefaultIndicators whenever the envelope has no usable results
object. Counts that are not non-negative integers are a *ValidationError.
*/
func AnalyzeEnvelope(raw []byte) (IndicatorSet, error) {
	var envelope map[string]json.RawMessage

	if err := json.Unmarshal(raw, &envelope); err != nil || envelope == nil {
		errnie.Info("analyzer: input is not a JSON object, using default indicators")
		return DefaultIndicators(), nil
	}

	results, ok := envelope["results"]
	if !ok {
		errnie.Info("analyzer: envelope has no results, using default indicators")
		return DefaultIndicators(), nil
	}

	decoder := json.NewDecoder(bytes.NewReader(results))
	decoder.UseNumber()

	var counts map[string]any
	if err := decoder.Decode(&counts); err != nil || counts == nil {
		errnie.Info("analyzer: results is not an object, using default indicators")
		return DefaultIndicators(), nil
	}

	h := make(Histogram, len(counts))
	for state, value := range counts {
		number, ok := value.(json.Number)
		if !ok {
			return IndicatorSet{}, validationErrorf("results", "count for %q is not a number", state)
		}

		count, err := strconv.Atoi(number.String())
		if err != nil {
			return IndicatorSet{}, validationErrorf("results", "count for %q is not an integer: %s", state, number)
		}

		h[state] = count
	}

	return Analyze(h)
}
