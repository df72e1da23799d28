// Package i18n holds the user-facing message catalog. Every reply the
// bot renders goes through T, so deployments can swap the embedded
// English catalog for a translated one without touching handler code.
package i18n

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var embedded []byte

var (
	mu      sync.RWMutex
	catalog map[string]string
)

func init() {
	m := make(map[string]string)
	if err := yaml.Unmarshal(embedded, &m); err != nil {
		panic("i18n: embedded catalog invalid: " + err.Error())
	}
	catalog = m
}

// Load replaces catalog entries with those from a YAML file. Keys
// missing from the file keep their embedded text.
func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", path, err)
	}
	override := make(map[string]string)
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse catalog %s: %w", path, err)
	}
	mu.Lock()
	defer mu.Unlock()
	for k, v := range override {
		catalog[k] = v
	}
	return nil
}

// T renders the message for key with fmt-style arguments. Unknown keys
// render as the key itself so a missing entry is visible, not silent.
func T(key string, args ...interface{}) string {
	mu.RLock()
	text, ok := catalog[key]
	mu.RUnlock()
	if !ok {
		return key
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}
