package params

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrSession = errors.New("params: invalid session")

// Session is the startup contract shared by the coordinator and the clients.
type Session struct {
	MaxClients int `yaml:"max_clients"`
	// VectorSize is the length V of each client's input.
	VectorSize int `yaml:"vector_size"`
	// InputBits is S: every input coordinate must be below 2ˢ.
	InputBits           int `yaml:"input_bits"`
	ExpectedDropouts    int `yaml:"expected_dropouts"`
	ExpectedCorruptions int `yaml:"expected_corruptions"`
	// SessionMS is the wall-clock budget of each phase.
	SessionMS int `yaml:"session_ms"`
	// InputSharingMS replaces SessionMS for the input sharing phase, if set.
	InputSharingMS int   `yaml:"input_sharing_ms"`
	Malicious      bool  `yaml:"malicious"`
	Param          Param `yaml:"param"`
}

// DefaultSession returns a semi-honest session with the default field.
func DefaultSession() Session {
	return Session{
		MaxClients: 10,
		VectorSize: 1000,
		InputBits:  16,
		SessionMS:  10_000,
		Param:      Default,
	}
}

// LoadSession reads a YAML session file. Fields missing from the file keep
// the values of DefaultSession.
func LoadSession(path string) (Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Session{}, fmt.Errorf("params: read session: %w", err)
	}
	s := DefaultSession()
	if err = yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("params: parse session %s: %w", path, err)
	}
	if err = s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Validate checks the session against its field.
func (s Session) Validate() error {
	if err := s.Param.Validate(); err != nil {
		return err
	}
	switch {
	case s.MaxClients < 1:
		return fmt.Errorf("%w: max_clients = %d", ErrSession, s.MaxClients)
	case s.VectorSize < 1:
		return fmt.Errorf("%w: vector_size = %d", ErrSession, s.VectorSize)
	case s.ExpectedDropouts < 0 || s.ExpectedCorruptions < 0:
		return fmt.Errorf("%w: negative expected dropouts or corruptions", ErrSession)
	case s.SessionMS <= 0 || s.InputSharingMS < 0:
		return fmt.Errorf("%w: phase budgets must be positive", ErrSession)
	case s.InputBits < 1 || s.InputBits >= bits.Len64(s.Param.P):
		return fmt.Errorf("%w: input_bits = %d", ErrSession, s.InputBits)
	}
	// y = Σxᵢ² must not wrap around p.
	if s.Malicious && 2*s.InputBits+CeilLog2(s.VectorSize) >= bits.Len64(s.Param.P)-1 {
		return fmt.Errorf("%w: squared norm of %d inputs of %d bits overflows the field", ErrSession, s.VectorSize, s.InputBits)
	}
	return nil
}

// PhaseBudget returns the budget of the regular phases.
func (s Session) PhaseBudget() time.Duration {
	return time.Duration(s.SessionMS) * time.Millisecond
}

// InputSharingBudget returns the budget of the input sharing phase.
func (s Session) InputSharingBudget() time.Duration {
	if s.InputSharingMS == 0 {
		return s.PhaseBudget()
	}
	return time.Duration(s.InputSharingMS) * time.Millisecond
}

// CeilLog2 returns ⌈log₂ v⌉ for v ≥ 1.
func CeilLog2(v int) int {
	if v <= 1 {
		return 0
	}
	return bits.Len64(uint64(v - 1))
}
