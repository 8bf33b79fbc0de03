package indexer

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCodeIDs converts code id strings into numbers. Entries may hold
// several comma separated ids, as environment values do.
func ParseCodeIDs(inputs []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(inputs))
	for _, input := range SplitList(inputs) {
		id, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid code id: %s", input)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SplitList flattens comma separated entries and drops blanks.
func SplitList(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, input := range inputs {
		for _, part := range strings.Split(input, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
