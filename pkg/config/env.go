package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// ProcessEnv is the container's process-environment contract: TASK_NAME,
// CONFIG (a JSON object), and PARTITION_IDS (a comma-separated,
// non-empty list of partition integers).
type ProcessEnv struct {
	TaskName   string
	Config     View
	Partitions []model.Partition
}

// FromEnv reads TASK_NAME, CONFIG, and PARTITION_IDS from the process
// environment. A missing TASK_NAME, unparsable CONFIG, or empty
// PARTITION_IDS is a setup-fatal error returned here rather than exiting
// directly, so cmd/streamcontainer controls the exit code and log line.
func FromEnv() (ProcessEnv, error) {
	taskName := os.Getenv("TASK_NAME")
	if taskName == "" {
		return ProcessEnv{}, &MissingKeyError{Key: "TASK_NAME"}
	}

	rawConfig := os.Getenv("CONFIG")
	if rawConfig == "" {
		return ProcessEnv{}, &MissingKeyError{Key: "CONFIG"}
	}
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(rawConfig), &values); err != nil {
		return ProcessEnv{}, fmt.Errorf("config: CONFIG is not a valid JSON object: %w", err)
	}

	rawPartitions := os.Getenv("PARTITION_IDS")
	if strings.TrimSpace(rawPartitions) == "" {
		return ProcessEnv{}, fmt.Errorf("config: PARTITION_IDS must not be empty")
	}
	var partitions []model.Partition
	for _, field := range strings.Split(rawPartitions, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return ProcessEnv{}, fmt.Errorf("config: PARTITION_IDS entry %q is not an integer: %w", field, err)
		}
		partitions = append(partitions, model.Partition(n))
	}
	if len(partitions) == 0 {
		return ProcessEnv{}, fmt.Errorf("config: PARTITION_IDS must not be empty")
	}

	return ProcessEnv{
		TaskName:   taskName,
		Config:     New(values),
		Partitions: partitions,
	}, nil
}

// FromYAMLFile loads a config map from a YAML document on disk, for the
// "streamcontainer run --config-file" development convenience; production
// launches still set CONFIG in the process environment. The YAML
// document is a flat mapping of string to string, mirroring the JSON
// shape of CONFIG.
func FromYAMLFile(path string) (View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return View{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	values, err := parseYAMLStringMap(data)
	if err != nil {
		return View{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return New(values), nil
}
