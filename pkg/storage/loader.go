// Package storage - Neo4j JSON files.
//
// Two on-disk layouts are read:
//   - a combined export: one JSON document {"nodes": [...], "relationships": [...]}
//   - an APOC export directory holding nodes.json and relationships.json, one
//     JSON object per line
//
// Example nodes.json:
//
//	{"id":"0","labels":["Person"],"properties":{"name":"Alice","age":30}}
//	{"id":"1","labels":["Person"],"properties":{"name":"Bob","age":25}}
//
// Example relationships.json:
//
//	{"id":"0","type":"KNOWS","startNode":"0","endNode":"1","properties":{"since":2020}}
//
// Writing always produces the combined layout.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const maxExportLine = 1024 * 1024

// ReadNeo4jExport reads a combined export file, or an APOC export directory
// when path is a directory. Either file of a directory may be missing.
func ReadNeo4jExport(path string) (*Neo4jExport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}
	if !info.IsDir() {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening file: %w", err)
		}
		defer file.Close()

		var export Neo4jExport
		if err := json.NewDecoder(file).Decode(&export); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return &export, nil
	}

	export := &Neo4jExport{}
	if err := readLinesFile(filepath.Join(path, "nodes.json"), func(line []byte) error {
		var n Neo4jNode
		if err := json.Unmarshal(line, &n); err != nil {
			return fmt.Errorf("parsing node JSON: %w", err)
		}
		export.Nodes = append(export.Nodes, n)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := readLinesFile(filepath.Join(path, "relationships.json"), func(line []byte) error {
		var r Neo4jRelationship
		if err := json.Unmarshal(line, &r); err != nil {
			return fmt.Errorf("parsing relationship JSON: %w", err)
		}
		export.Relationships = append(export.Relationships, r)
		return nil
	}); err != nil {
		return nil, err
	}
	return export, nil
}

// WriteNeo4jExport writes export as one indented JSON document.
func WriteNeo4jExport(w io.Writer, export *Neo4jExport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

func readLinesFile(path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Optional file
		}
		return err
	}
	defer file.Close()

	if err := readLines(file, fn); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// readLines calls fn for each non-empty line of r.
func readLines(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer for large lines
	scanner.Buffer(make([]byte, 0, 64*1024), maxExportLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning file: %w", err)
	}
	return nil
}
