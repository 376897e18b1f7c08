package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/theapemachine/qbridge"
	"github.com/theapemachine/qbridge/internal/bridge"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"metrics": s.bridge.Metrics().ExportMetrics(),
	})
}

func (s *Server) handleGetCircuit(w http.ResponseWriter, r *http.Request) {
	d, err := s.bridge.LastCircuit()
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleBuildCircuit builds a fresh circuit, over ?qubits= or five qubits.
func (s *Server) handleBuildCircuit(w http.ResponseWriter, r *http.Request) {
	qubits, err := intParam(r, "qubits", bridge.PredictionQubits)
	if err != nil {
		writeFailure(w, err)
		return
	}

	d, err := s.bridge.BuildCircuit(qubits)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

/*
handleRun runs the circuit in the request body, either shape. An empty body
runs a freshly built five-qubit circuit.
*/
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	shots, err := intParam(r, "shots", 0)
	if err != nil {
		writeFailure(w, err)
		return
	}

	raw, err := readBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	var envelope *bridge.Envelope

	if len(bytes.TrimSpace(raw)) == 0 {
		d, berr := s.bridge.BuildCircuit(bridge.PredictionQubits)
		if berr != nil {
			writeFailure(w, berr)
			return
		}
		envelope, err = s.bridge.RunDescriptor(r.Context(), d, shots)
	} else {
		envelope, err = s.bridge.RunComputation(r.Context(), raw, shots)
	}

	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	indicators, err := s.bridge.AnalyzeResults(raw)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, indicators)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]qbridge.Device{"devices": s.bridge.ListDevices()})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Predict(r.Context(), r.URL.Query().Get("span")))
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &qbridge.ValidationError{Field: name, Reason: "not an integer: " + value}
	}

	return n, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &qbridge.ValidationError{Field: "body", Reason: err.Error()}
		}
		return nil, err
	}
	return raw, nil
}

// statusOf maps an error to the status the client sees.
func statusOf(err error) int {
	switch {
	case qbridge.IsValidation(err):
		return http.StatusBadRequest
	case qbridge.IsResource(err):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, qbridge.ErrThrottled), errors.Is(err, qbridge.ErrCircuitOpen),
		errors.Is(err, qbridge.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("server: %v", err)
	}

	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
