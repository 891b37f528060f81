package checkpoint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// parseSSP reverses model.SSP.String's "system.stream.partition" form.
// The partition is taken from the last dot-delimited segment and the
// system from the first, so stream names containing dots round-trip
// correctly.
func parseSSP(s string) (model.SSP, error) {
	lastDot := strings.LastIndex(s, ".")
	firstDot := strings.Index(s, ".")
	if lastDot <= firstDot {
		return model.SSP{}, fmt.Errorf("malformed ssp %q", s)
	}

	partitionStr := s[lastDot+1:]
	partition, err := strconv.Atoi(partitionStr)
	if err != nil {
		return model.SSP{}, fmt.Errorf("malformed partition in ssp %q: %w", s, err)
	}

	return model.SSP{
		System:    s[:firstDot],
		Stream:    s[firstDot+1 : lastDot],
		Partition: model.Partition(partition),
	}, nil
}
