package ml

import (
	"strings"
	"sync"
)

// UnknownCategory is the code key used for absent categorical values
const UnknownCategory = "unknown"

// Codebook lazily assigns positive integer codes to categorical strings.
// Codes are handed out in first-seen order and never reassigned, so a
// value keeps its code for the life of the process.
type Codebook struct {
	mu    sync.RWMutex
	codes map[string]int
}

// NewCodebook creates a codebook, optionally pre-seeded with a fixed vocabulary
func NewCodebook(vocabulary ...string) *Codebook {
	c := &Codebook{codes: make(map[string]int)}
	for _, v := range vocabulary {
		c.Encode(v)
	}
	return c
}

// Encode returns the code for raw, assigning the next one on first sight
func (c *Codebook) Encode(raw string) int {
	key := NormalizeCategory(raw)

	c.mu.RLock()
	code, ok := c.codes[key]
	c.mu.RUnlock()
	if ok {
		return code
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if code, ok := c.codes[key]; ok {
		return code
	}
	code = len(c.codes) + 1
	c.codes[key] = code
	return code
}

// Len returns the number of known values
func (c *Codebook) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.codes)
}

// NormalizeCategory lowercases and trims a categorical value, defaulting to "unknown"
func NormalizeCategory(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return UnknownCategory
	}
	return key
}
