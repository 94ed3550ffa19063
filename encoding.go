// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import "fmt"

// WriteOption selects which properties of a managed object are serialized
type WriteOption int

const (
	// WriteAll emits every known property regardless of dirty state
	WriteAll WriteOption = iota

	// WriteAllConfig emits only configuration (non-operational) properties
	WriteAllConfig

	// WriteDirty emits only properties changed since the object was last marked clean
	// This is the option used for outbound mutation requests
	WriteDirty
)

// String returns the string representation of a WriteOption
func (o WriteOption) String() string {
	switch o {
	case WriteAll:
		return "all"
	case WriteAllConfig:
		return "all-config"
	case WriteDirty:
		return "dirty"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// ValidWriteOptions contains the list of valid write options
var ValidWriteOptions = []WriteOption{
	WriteAll,
	WriteAllConfig,
	WriteDirty,
}

// ValidateWriteOption checks if the write option is valid
//
// Example:
//
//	if err := ucs.ValidateWriteOption(opt); err != nil {
//	    log.Fatal(err)
//	}
func ValidateWriteOption(opt WriteOption) error {
	for _, valid := range ValidWriteOptions {
		if opt == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid write option: %d (valid values: all, all-config, dirty)", int(opt))
}
