package port

import (
	"fmt"

	"github.com/addiskers/webp/internal/model"
)

const (
	// maxPort is the highest valid TCP port number (2^16 - 1).
	maxPort = 65535

	// nearbySearchWidth is how many ports above the preferred one are tried
	// before falling back to the dynamic range. Staying close keeps the
	// chosen port guessable (5008 → 5009, 5010, ...).
	nearbySearchWidth = 10

	// dynamicRangeStart and dynamicRangeEnd bound the IANA dynamic/private
	// port range used as the last resort.
	dynamicRangeStart = 49152
	dynamicRangeEnd   = 65535
)

// Resolve returns the port the server should listen on.
//
// Algorithm:
//  1. If preferred is free, return it.
//  2. If auto is false, fail with ExitPortUnavailable.
//  3. Try preferred+1 .. preferred+nearbySearchWidth.
//  4. Try the dynamic range 49152-65535.
//
// Returns a model.CLIError with ExitPortUnavailable when no port is found.
func (s *Scanner) Resolve(preferred int, auto bool) (int, error) {
	if preferred < 1 || preferred > maxPort {
		return 0, model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("port %d out of range (1-%d)", preferred, maxPort))
	}

	if s.IsPortAvailable(preferred) {
		return preferred, nil
	}

	if !auto {
		return 0, model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("port %d is already in use (use --auto-port to pick another)", preferred))
	}

	nearbyEnd := preferred + nearbySearchWidth
	if nearbyEnd > maxPort {
		nearbyEnd = maxPort
	}
	if p, err := s.FindAvailablePort(preferred+1, nearbyEnd); err == nil {
		return p, nil
	}

	p, err := s.FindAvailablePort(dynamicRangeStart, dynamicRangeEnd)
	if err != nil {
		return 0, model.WrapCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("port %d is in use and no alternative was found", preferred), err)
	}
	return p, nil
}
