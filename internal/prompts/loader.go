// Package prompts provides a loader for externalized LLM prompt templates.
// Prompts are stored as JSON files and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

// Get retrieves a prompt by filename and key. The filename should not
// include a path (e.g., "pipeline.json").
func Get(filename, key string) (string, error) {
	loaded, err := loadFile(filename)
	if err != nil {
		return "", err
	}
	prompt, exists := loaded[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// MustGet retrieves a prompt, panicking if the file or key is missing. Use
// for prompts required at initialization time.
func MustGet(filename, key string) string {
	prompt, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Format replaces placeholders in the form {{.Key}} with values from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}

func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	if loaded, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return loaded, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var loaded map[string]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = loaded
	cacheMu.Unlock()
	return loaded, nil
}
