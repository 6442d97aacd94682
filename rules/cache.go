package rules

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// indentJSON keeps numbers as written so large integers survive re-indenting.
var indentJSON = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Cache stores upstream documents as pretty-printed JSON files.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	if dir == "" {
		dir = "."
	}
	return &Cache{dir: dir}
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, filepath.FromSlash(name))
}

func (c *Cache) Read(name string) ([]byte, error) {
	return os.ReadFile(c.Path(name))
}

// Write re-indents raw and stores it under name, creating parent
// directories as needed.
func (c *Cache) Write(name string, raw []byte) error {
	var doc interface{}
	if err := indentJSON.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	data, err := indentJSON.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := c.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
