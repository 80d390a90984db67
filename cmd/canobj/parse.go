package main

import (
	"fmt"
	"strconv"
)

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 29)
	if err != nil {
		return 0, fmt.Errorf("identifier %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseSlot(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("object %q: %w", s, err)
	}
	return v, nil
}

// parseData reads one byte per argument; 0x, 0o and 0b prefixes are
// honoured.
func parseData(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("data byte %q: %w", a, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
