package service

import (
	"context"
	"fmt"
	"sync"

	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// Default PIN policy.
const (
	DefaultMaxPinAttempts = 5
	DefaultPinMinLength   = 4
	DefaultPinMaxLength   = 8
)

// PinPolicy bounds PIN length and the number of failed attempts before lockout.
type PinPolicy struct {
	MaxAttempts int
	MinLength   int
	MaxLength   int
}

func (p PinPolicy) withDefaults() PinPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxPinAttempts
	}
	if p.MinLength <= 0 {
		p.MinLength = DefaultPinMinLength
	}
	if p.MaxLength < p.MinLength {
		p.MaxLength = max(DefaultPinMaxLength, p.MinLength)
	}
	return p
}

// PinService implements ports.PinVerifier.
type PinService struct {
	store    ports.PinStore
	attempts ports.AttemptCounter
	hasher   ports.HashService
	policy   PinPolicy
	log      zerolog.Logger

	// mu serializes verification within the process. Across processes
	// the attempt reservation in VerifyPin bounds the guesses.
	mu sync.Mutex
}

// NewPinService creates a new PinService.
func NewPinService(
	store ports.PinStore,
	attempts ports.AttemptCounter,
	hasher ports.HashService,
	policy PinPolicy,
	log zerolog.Logger,
) *PinService {
	return &PinService{
		store:    store,
		attempts: attempts,
		hasher:   hasher,
		policy:   policy.withDefaults(),
		log:      log,
	}
}

// SetPin replaces the PIN and clears any lockout.
func (s *PinService) SetPin(ctx context.Context, pin string) error {
	if err := s.validate(pin); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash pin: %w", err))
	}
	if err := s.store.SetHash(ctx, hash); err != nil {
		return apperror.InternalError(fmt.Errorf("store pin: %w", err))
	}
	if err := s.attempts.Reset(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("reset attempts: %w", err))
	}

	s.log.Info().Msg("PIN updated")
	return nil
}

// VerifyPin checks pin against the stored hash. Once the failure count
// reaches the limit every attempt is rejected, including a correct PIN.
// An attempt is counted as failed before the hash is compared and the
// count is cleared on success, so concurrent guesses never exceed the limit.
func (s *PinService) VerifyPin(ctx context.Context, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures, err := s.attempts.Failures(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read attempts: %w", err))
	}
	if failures >= s.policy.MaxAttempts {
		s.log.Warn().Int("failures", failures).Msg("PIN rejected: locked out")
		return apperror.ErrLockedOut()
	}

	hash, err := s.store.GetHash(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("read pin: %w", err))
	}
	if hash == "" {
		return apperror.ErrPinNotSet()
	}

	failures, err = s.attempts.RecordFailure(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("record attempt: %w", err))
	}
	if failures > s.policy.MaxAttempts {
		s.log.Warn().Int("failures", failures).Msg("PIN rejected: locked out")
		return apperror.ErrLockedOut()
	}

	ok, err := s.hasher.Verify(pin, hash)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("verify pin: %w", err))
	}
	if ok {
		if err := s.attempts.Reset(ctx); err != nil {
			return apperror.InternalError(fmt.Errorf("reset attempts: %w", err))
		}
		return nil
	}

	remaining := max(s.policy.MaxAttempts-failures, 0)
	s.log.Warn().Int("failures", failures).Int("remaining", remaining).Msg("Invalid PIN")
	return apperror.ErrInvalidPin(remaining)
}

// ResetLockout clears the failure count.
func (s *PinService) ResetLockout(ctx context.Context) error {
	if err := s.attempts.Reset(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("reset attempts: %w", err))
	}
	s.log.Info().Msg("PIN lockout reset")
	return nil
}

func (s *PinService) Attempts(ctx context.Context) (int, error) {
	n, err := s.attempts.Failures(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("read attempts: %w", err))
	}
	return n, nil
}

func (s *PinService) validate(pin string) error {
	if len(pin) < s.policy.MinLength || len(pin) > s.policy.MaxLength {
		return apperror.Validation(fmt.Sprintf("PIN must be %d to %d digits", s.policy.MinLength, s.policy.MaxLength))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return apperror.Validation("PIN must contain digits only")
		}
	}
	return nil
}
