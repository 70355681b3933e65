package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// loadFallbackFile reads KEY=VALUE lines where KEY is a secret reference or
// bare secret name. A missing file yields an empty map.
func loadFallbackFile(path string) (map[string]string, error) {
	values := map[string]string{}
	path = strings.TrimSpace(path)
	if path == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return values, fmt.Errorf("secrets: open fallback file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if !IsReference(key) {
			key = "secret://" + key
		}
		ref, err := ParseReference(key)
		if err != nil {
			continue
		}
		values[ref.Key()] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	if err := scanner.Err(); err != nil {
		return values, fmt.Errorf("secrets: read fallback file: %w", err)
	}
	return values, nil
}
