package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a Store from a JSON file shaped like Store itself
// (products/faqs/recipes/videos arrays). A missing path is not an error:
// the pipeline starts with an empty Store so classification and
// generation still work, just without retrieval hits, the same
// always-starts posture the persistence registry takes when content-repo
// credentials are absent.
func LoadFile(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{}, nil
		}
		return nil, fmt.Errorf("knowledge: read %s: %w", path, err)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("knowledge: parse %s: %w", path, err)
	}
	return &store, nil
}
