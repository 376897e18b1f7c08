package bridge

import (
	"fmt"
	"time"

	"github.com/theapemachine/qbridge"
)

const statusCompleted = "COMPLETED"

// EnvelopeMetadata describes where and how a computation ran.
type EnvelopeMetadata struct {
	Device        string  `json:"device"`
	Shots         int     `json:"shots"`
	ExecutionTime float64 `json:"execution_time"`
	RealQuantum   bool    `json:"real_quantum"`
	Provider      string  `json:"provider"`
	FallbackFrom  string  `json:"fallback_from,omitempty"`
}

// Envelope is the result of RunComputation as front ends consume it.
type Envelope struct {
	JobID    string            `json:"job_id"`
	Status   string            `json:"status"`
	Results  qbridge.Histogram `json:"results"`
	Metadata EnvelopeMetadata  `json:"metadata"`
}

// NewEnvelope wraps an execution. ExecutionTime is in seconds.
func NewEnvelope(execution *qbridge.Execution) *Envelope {
	return &Envelope{
		JobID:   execution.JobID,
		Status:  statusCompleted,
		Results: execution.Results,
		Metadata: EnvelopeMetadata{
			Device:        execution.Device,
			Shots:         execution.Shots,
			ExecutionTime: execution.Duration.Seconds(),
			RealQuantum:   execution.RealQuantum,
			Provider:      execution.Provider,
			FallbackFrom:  execution.FallbackFrom,
		},
	}
}

/*
UniformEnvelope is the stand-in result used when a prediction could not run
its circuit: four two-qubit outcomes with 256 counts each.
*/
func UniformEnvelope(now time.Time) *Envelope {
	return &Envelope{
		JobID:  fmt.Sprintf("job_%d", now.Unix()),
		Status: statusCompleted,
		Results: qbridge.Histogram{
			"00": 256,
			"01": 256,
			"10": 256,
			"11": 256,
		},
		Metadata: EnvelopeMetadata{
			Device:        qbridge.SimulatorDeviceID,
			Shots:         1024,
			ExecutionTime: 0.1,
			Provider:      "local",
		},
	}
}
