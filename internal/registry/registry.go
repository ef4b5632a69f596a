// Package registry holds the file-backed stores shared across poll cycles:
// the seen-errors registry, the status tracker, the per-service pending
// queues, and the poll checkpoint. Every store follows the same discipline:
// load the whole file, mutate in memory, write the whole file back through
// an atomic rename. A missing or unparsable file is an empty store, never
// a fatal condition.
package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// loadJSON reads path into v. Missing or corrupt state is recovered by
// leaving v untouched; corruption is surfaced as a warning only.
func loadJSON(path string, v interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("registry: read %s: %v (treating as empty)", path, err)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("registry: parse %s: %v (treating as empty)", path, err)
	}
}

// saveJSON writes v to path atomically: a temp file in the same directory
// followed by a rename, so a crashed writer never leaves a torn file for
// the next cycle to read.
func saveJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return fmt.Errorf("registry: mkdir %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("registry: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("registry: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, defaultFileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry: rename %s: %w", path, err)
	}
	return nil
}

// sanitizeServiceName maps a service name to a safe file name component.
func sanitizeServiceName(service string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	out := replacer.Replace(service)
	if out == "" {
		out = "_"
	}
	return out
}
