package youtube

import (
	"fmt"
	"regexp"
	"strconv"
)

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 video duration such as PT1H2M3S or
// P1DT2H to seconds.
func ParseDuration(duration string) (int, error) {
	m := durationPattern.FindStringSubmatch(duration)
	if m == nil || duration == "P" || duration == "PT" {
		return 0, fmt.Errorf("invalid duration format: %q", duration)
	}

	units := [...]int{86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration component %q: %w", m[i+1], err)
		}
		total += n * unit
	}
	return total, nil
}

// BatchVideoIDs splits ids into slices of at most batchSize.
func BatchVideoIDs(ids []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = MaxBatchSize
	}

	var batches [][]string
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
