package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadResult aggregates the manifests that parsed cleanly plus diagnostics
// for the sources that did not. A malformed manifest never aborts the load;
// it is reported and skipped so the remaining manifests still register.
type LoadResult struct {
	Manifests   []Manifest
	Diagnostics []Diagnostic
}

// ParseManifest decodes a single JSON manifest, applies its defaults to
// every tool, and captures the declared parameter order for validation.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("tool: parse manifest: %w", err)
	}
	if err := captureParamOrder(data, &m); err != nil {
		return Manifest{}, err
	}
	m.applyDefaults()
	return m, nil
}

// ParseManifestYAML decodes a YAML manifest. YAML is accepted as a
// hand-authoring convenience; the document is normalized through JSON so
// both formats share one schema. YAML mappings do not preserve key order,
// so parameter order falls back to name-sorted.
func ParseManifestYAML(data []byte) (Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("tool: parse yaml manifest: %w", err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("tool: normalize yaml manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(normalized, &m); err != nil {
		return Manifest{}, fmt.Errorf("tool: parse yaml manifest: %w", err)
	}
	m.applyDefaults()
	return m, nil
}

// LoadManifestFile reads one manifest from disk, selecting the parser by
// file extension (.json, .yaml, .yml).
func LoadManifestFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("tool: read manifest %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseManifestYAML(data)
	default:
		return ParseManifest(data)
	}
}

// LoadDirectory loads every manifest file in dir in name-sorted order. A
// missing directory yields an empty result rather than an error so a fresh
// deployment can start with no manifests.
func LoadDirectory(dir string) (LoadResult, error) {
	var result LoadResult
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("tool: read manifest directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		m, err := LoadManifestFile(path)
		if err != nil {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Field:    path,
				Code:     "MANIFEST_LOAD_FAILED",
				Severity: SeverityError,
				Message:  err.Error(),
			})
			continue
		}
		if diags := ValidateManifest(m); HasErrors(diags) {
			for i := range diags {
				diags[i].Field = path + ": " + diags[i].Field
			}
			result.Diagnostics = append(result.Diagnostics, diags...)
			continue
		}
		result.Manifests = append(result.Manifests, m)
	}
	return result, nil
}

// captureParamOrder records the key order of each tool's parameters object
// from the raw JSON, since Go maps do not retain it.
func captureParamOrder(data []byte, m *Manifest) error {
	var raw struct {
		Tools []struct {
			Parameters json.RawMessage `json:"parameters"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tool: scan manifest parameters: %w", err)
	}
	for i := range m.Tools {
		if i >= len(raw.Tools) || len(raw.Tools[i].Parameters) == 0 {
			continue
		}
		order, err := objectKeyOrder(raw.Tools[i].Parameters)
		if err != nil {
			return fmt.Errorf("tool: scan parameter order for %q: %w", m.Tools[i].Name, err)
		}
		m.Tools[i].ParamOrder = order
	}
	return nil
}

// objectKeyOrder returns the top-level key order of a JSON object.
func objectKeyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)
		if err := skipJSONValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); ok && (delim == '{' || delim == '[') {
		for dec.More() {
			if err := skipJSONValue(dec); err != nil {
				return err
			}
		}
		_, err = dec.Token()
		return err
	}
	return nil
}

// WriteManifestFile saves a manifest as indented JSON, the canonical
// on-disk form produced by discovery adapters.
func WriteManifestFile(m Manifest, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("tool: encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("tool: write manifest %s: %w", path, err)
	}
	return nil
}
