// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnState is the supervisor's view of the WhatsApp connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateTerminal means the pairing was revoked. The supervisor stops
	// scheduling reconnects; only operator intervention (re-pairing) helps.
	StateTerminal
)

// String returns the lowercase state name for logging.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Supervisor owns the connection state and drives reconnection after drops.
// All other components observe the state read-only through State().
type Supervisor struct {
	mu           sync.Mutex
	state        ConnState
	shuttingDown bool
	timer        *time.Timer

	delay   time.Duration
	connect func(ctx context.Context) error
	log     zerolog.Logger
}

// NewSupervisor builds a supervisor that calls connect for each attempt,
// waiting delay between a recoverable drop and the retry.
func NewSupervisor(connect func(ctx context.Context) error, delay time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		state:   StateDisconnected,
		delay:   delay,
		connect: connect,
		log:     log.With().Str("component", "supervisor").Logger(),
	}
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start performs the initial connection attempt.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()
	if err := s.connect(ctx); err != nil {
		s.HandleDisconnected(ctx, ReasonTransient)
		return err
	}
	return nil
}

// HandleConnected records a successful connection.
func (s *Supervisor) HandleConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnected
	s.log.Info().Msg("Connected")
}

// HandleDisconnected reacts to a connection drop. Recoverable reasons
// schedule one reconnect attempt after the fixed delay; a revoked login is
// terminal and surfaced loudly for the operator.
func (s *Supervisor) HandleDisconnected(ctx context.Context, reason DisconnectReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown || s.state == StateTerminal {
		return
	}

	if reason == ReasonLoggedOut {
		s.state = StateTerminal
		s.log.Error().Msg("Session revoked by remote, not reconnecting; re-pair the device to recover")
		return
	}

	s.state = StateConnecting
	s.log.Warn().Dur("delay", s.delay).Msg("Disconnected, scheduling reconnect")
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.attempt(ctx)
	})
}

func (s *Supervisor) attempt(ctx context.Context) {
	s.mu.Lock()
	if s.shuttingDown || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Reconnect attempt failed")
		s.mu.Lock()
		if !s.shuttingDown && s.state == StateConnecting {
			if s.timer != nil {
				s.timer.Stop()
			}
			s.timer = time.AfterFunc(s.delay, func() {
				s.attempt(ctx)
			})
		}
		s.mu.Unlock()
	}
	// Success is recorded by HandleConnected when the shim delivers the
	// connected event, not here.
}

// Shutdown suppresses all further reconnect attempts regardless of any
// disconnect reason observed afterwards.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuttingDown = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
