package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/theapemachine/qbridge"
	"github.com/theapemachine/qbridge/internal/bridge"
	"github.com/theapemachine/qbridge/internal/server"
)

const shutdownTimeout = 5 * time.Second

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	seed       uint64
	config     *qbridge.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "qbridge",
		Short: "Build, simulate and analyze small quantum circuits",
		Long: `qbridge simulates quantum circuits on a classical state vector and
reduces the measurement results to indicator metrics. Results are written
to stdout as JSON, logs go to stderr.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().Uint64Var(&a.seed, "seed", 0, "sampling seed, 0 draws a random one")

	root.AddCommand(
		a.circuitCmd(),
		a.runCmd(),
		a.analyzeCmd(),
		a.devicesCmd(),
		a.predictCmd(),
		a.serveCmd(),
	)

	return root
}

func (a *app) loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := qbridge.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("seed") {
		cfg.Seed = a.seed
	}

	a.config = cfg
	return nil
}

// withBridge opens a bridge for the duration of fn.
func (a *app) withBridge(cmd *cobra.Command, fn func(b *bridge.Bridge) error) error {
	b, err := bridge.New(cmd.Context(), a.config)
	if err != nil {
		return err
	}

	return errors.Join(fn(b), b.Close())
}

func (a *app) circuitCmd() *cobra.Command {
	var (
		qubits int
		fresh  bool
	)

	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Print the last circuit, building one if there is none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(cmd, func(b *bridge.Bridge) error {
				var (
					d   *bridge.Descriptor
					err error
				)

				if fresh || cmd.Flags().Changed("qubits") {
					d, err = b.BuildCircuit(qubits)
				} else {
					d, err = b.LastCircuit()
				}

				if err != nil {
					return err
				}

				return writeJSON(cmd, d)
			})
		},
	}

	cmd.Flags().IntVar(&qubits, "qubits", bridge.PredictionQubits, "qubits in a freshly built circuit")
	cmd.Flags().BoolVar(&fresh, "new", false, "always build a fresh circuit")

	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var shots int

	cmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Run a circuit descriptor or internal circuit and print the result envelope",
		Long: `run reads a circuit from the file, or stdin for "-". Without an argument
it builds and runs a fresh five-qubit circuit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(cmd, func(b *bridge.Bridge) error {
				var (
					envelope *bridge.Envelope
					err      error
				)

				if len(args) == 0 {
					d, berr := b.BuildCircuit(bridge.PredictionQubits)
					if berr != nil {
						return berr
					}
					envelope, err = b.RunDescriptor(cmd.Context(), d, shots)
				} else {
					raw, rerr := readInput(cmd, args[0])
					if rerr != nil {
						return rerr
					}
					envelope, err = b.RunComputation(cmd.Context(), raw, shots)
				}

				if err != nil {
					return err
				}

				return writeJSON(cmd, envelope)
			})
		},
	}

	cmd.Flags().IntVar(&shots, "shots", 0, "measurement shots, 0 uses the configured default")

	return cmd
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Reduce a result envelope to indicator metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}

			raw, err := readInput(cmd, source)
			if err != nil {
				return err
			}

			indicators, err := qbridge.AnalyzeEnvelope(raw)
			if err != nil {
				return err
			}

			return writeJSON(cmd, indicators)
		},
	}
}

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the available execution devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBridge(cmd, func(b *bridge.Bridge) error {
				return writeJSON(cmd, map[string][]qbridge.Device{"devices": b.ListDevices()})
			})
		},
	}
}

func (a *app) predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict [span]",
		Short: "Run the prediction circuit and print a fortune",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			span := ""
			if len(args) == 1 {
				span = args[0]
			}

			return a.withBridge(cmd, func(b *bridge.Bridge) error {
				return writeJSON(cmd, b.Predict(cmd.Context(), span))
			})
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.config.Addr = addr
			}

			return a.withBridge(cmd, func(b *bridge.Bridge) error {
				srv := server.New(a.config.Addr, b, qbridge.NewRateLimiter(a.config.RateLimit))

				errs := make(chan error, 1)
				go func() {
					errs <- srv.Start()
				}()

				select {
				case err := <-errs:
					return err
				case <-cmd.Context().Done():
				}

				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					return err
				}

				if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
					return err
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the configured one")

	return cmd
}

// readInput reads the named file, or stdin for "-".
func readInput(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}

	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}

	return bytes.TrimSpace(raw), nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
