package model

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount parses a base-10 integer amount. Empty input is zero.
func ParseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	return parsed, nil
}

// FormatAmount renders value as a base-10 string, treating nil as zero.
func FormatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// AddAmount returns base+delta for two decimal strings.
func AddAmount(base string, delta *big.Int) (string, error) {
	current, err := ParseAmount(base)
	if err != nil {
		return "", err
	}
	if delta != nil {
		current.Add(current, delta)
	}
	return current.String(), nil
}
