// Package safety implements the dead-man switch. When tripped, every
// evaluator stops issuing mutating exchange calls until an operator
// explicitly resumes. The switch state lives in the shared keyring so all
// processes observe the same pause.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nugraha/cakra/internal/domain"
)

// stateKey is where the switch state is stored in the keyring.
const stateKey = "safety:deadman"

// Store is the subset of the keyring the switch needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Switch is the process-wide trading interlock.
type Switch struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
	gauge prometheus.Gauge
}

// New builds a Switch on the given store.
func New(store Store, log zerolog.Logger) *Switch {
	return &Switch{
		store: store,
		log:   log.With().Str("component", "safety").Logger(),
		now:   time.Now,
	}
}

// SetPausedGauge registers a gauge that mirrors the paused state written
// by this process.
func (s *Switch) SetPausedGauge(g prometheus.Gauge) {
	s.gauge = g
}

// Status returns the current switch state. A missing key means trading is
// allowed; an unreadable store or corrupt state fails safe and reports
// paused.
func (s *Switch) Status(ctx context.Context) (domain.SafetyStatus, error) {
	raw, ok, err := s.store.Get(ctx, stateKey)
	if err != nil {
		return domain.SafetyStatus{
			Paused: true,
			Reason: "safety state unavailable",
			Source: "safety",
		}, fmt.Errorf("failed to read safety state: %w", err)
	}
	if !ok {
		return domain.SafetyStatus{Paused: false}, nil
	}

	var status domain.SafetyStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return domain.SafetyStatus{
			Paused: true,
			Reason: "safety state corrupt",
			Source: "safety",
		}, fmt.Errorf("failed to decode safety state: %w", err)
	}
	return status, nil
}

// Pause trips the switch. Source identifies who tripped it (an evaluator
// name or "operator").
func (s *Switch) Pause(ctx context.Context, reason, source string) error {
	status := domain.SafetyStatus{
		Paused:    true,
		Reason:    reason,
		Source:    source,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.write(ctx, status); err != nil {
		return err
	}

	s.log.Warn().
		Str("reason", reason).
		Str("source", source).
		Msg("Dead-man switch tripped, trading paused")
	return nil
}

// Resume clears the switch. Only operators call this; evaluators never
// resume on their own.
func (s *Switch) Resume(ctx context.Context, source string) error {
	status := domain.SafetyStatus{
		Paused:    false,
		Source:    source,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.write(ctx, status); err != nil {
		return err
	}

	s.log.Info().Str("source", source).Msg("Dead-man switch cleared, trading resumed")
	return nil
}

// Gate reports whether mutating exchange calls are currently allowed.
// Any doubt (store failure, corrupt state) gates trading off.
func (s *Switch) Gate(ctx context.Context) bool {
	status, err := s.Status(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read safety state, gating trading off")
		return false
	}
	return !status.Paused
}

func (s *Switch) write(ctx context.Context, status domain.SafetyStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode safety state: %w", err)
	}
	if err := s.store.Set(ctx, stateKey, string(raw), 0); err != nil {
		return fmt.Errorf("failed to write safety state: %w", err)
	}
	if s.gauge != nil {
		if status.Paused {
			s.gauge.Set(1)
		} else {
			s.gauge.Set(0)
		}
	}
	return nil
}
