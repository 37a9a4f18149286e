package pools

import (
	"encoding/json"
	"fmt"
	"os"

	"poolstates/internal/model"
)

// LoadDescriptorsFile reads a JSON array of pool descriptors from disk.
func LoadDescriptorsFile(path string) ([]model.PoolDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}

	var descriptors []model.PoolDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse pools file: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("pools file %s contains no descriptors", path)
	}

	for _, desc := range descriptors {
		if err := desc.Validate(); err != nil {
			return nil, err
		}
	}

	return descriptors, nil
}

// EarliestBlock returns the lowest activation height across descriptors.
func EarliestBlock(descriptors []model.PoolDescriptor) uint64 {
	if len(descriptors) == 0 {
		return 0
	}
	earliest := descriptors[0].EarliestBlock
	for _, desc := range descriptors[1:] {
		if desc.EarliestBlock < earliest {
			earliest = desc.EarliestBlock
		}
	}
	return earliest
}
