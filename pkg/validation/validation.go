// Package validation holds input checks shared by the configuration
// loader and the HTTP surface.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// AccountIDRegex validates account identifier format
var AccountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePort validates a TCP/UDP port number
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", port)
	}
	return nil
}

// ValidateBitrateRange validates a min/max bitrate pair in kbps
func ValidateBitrateRange(minKbps, maxKbps int) error {
	if minKbps <= 0 {
		return fmt.Errorf("min bitrate must be > 0, got %d", minKbps)
	}
	if maxKbps <= minKbps {
		return fmt.Errorf("max bitrate must be > min bitrate (%d), got %d", minKbps, maxKbps)
	}
	return nil
}

// ValidateQualityPercent validates a compression quality percentage
func ValidateQualityPercent(quality int) error {
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality must be in 1..100, got %d", quality)
	}
	return nil
}

// ValidateAccountID validates an account identifier
func ValidateAccountID(accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account ID is required")
	}
	if len(accountID) > 100 {
		return fmt.Errorf("account ID is too long (max 100 characters)")
	}
	if !AccountIDRegex.MatchString(accountID) {
		return fmt.Errorf("account ID contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateTier validates an account tier name
func ValidateTier(tier string) error {
	switch tier {
	case "standard", "premium", "elite":
		return nil
	default:
		return fmt.Errorf("unknown tier %q (must be standard, premium or elite)", tier)
	}
}

// ValidateHostPort validates a host:port listen address. An empty host
// (":8080") is accepted and means all interfaces.
func ValidateHostPort(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	if port == "" {
		return fmt.Errorf("address %q is missing a port", address)
	}
	return nil
}

// ValidateDimensions validates a capture surface size
func ValidateDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("dimensions must be positive, got %dx%d", width, height)
	}
	if width > 7680 || height > 4320 {
		return fmt.Errorf("dimensions exceed 8K limit, got %dx%d", width, height)
	}
	return nil
}
