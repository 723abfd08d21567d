package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FileTree maps a path segment to a file or a sub directory.
//
// On the wire it keeps the shape the in-browser runtime mounts:
//
//	{"app.js": {"file": {"contents": "..."}}, "src": {"directory": {...}}}
type FileTree map[string]FileNode

// FileNode is either a file leaf or a directory. Exactly one of File and
// Directory is set.
type FileNode struct {
	File      *FileContent
	Directory FileTree
}

// FileContent holds the contents of a file leaf.
type FileContent struct {
	Contents string `json:"contents"`
}

// NewFile builds a file leaf.
func NewFile(contents string) FileNode {
	return FileNode{File: &FileContent{Contents: contents}}
}

// NewDirectory builds a directory node.
func NewDirectory(children FileTree) FileNode {
	if children == nil {
		children = FileTree{}
	}
	return FileNode{Directory: children}
}

// IsFile reports whether the node is a file leaf.
func (n FileNode) IsFile() bool {
	return n.File != nil
}

type fileNodeWire struct {
	File      *FileContent `json:"file,omitempty"`
	Directory *FileTree    `json:"directory,omitempty"`
}

func (n FileNode) MarshalJSON() ([]byte, error) {
	if n.File != nil {
		return json.Marshal(fileNodeWire{File: n.File})
	}
	dir := n.Directory
	if dir == nil {
		dir = FileTree{}
	}
	return json.Marshal(fileNodeWire{Directory: &dir})
}

func (n *FileNode) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var wire fileNodeWire
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("invalid file tree node: %w", err)
	}

	switch {
	case wire.File != nil && wire.Directory != nil:
		return errors.New("file tree node cannot be both a file and a directory")
	case wire.File != nil:
		*n = FileNode{File: wire.File}
	case wire.Directory != nil:
		*n = NewDirectory(*wire.Directory)
	default:
		return errors.New("file tree node must be a file or a directory")
	}
	return nil
}

// Validate rejects empty names and names containing a path separator.
func (t FileTree) Validate() error {
	for name, node := range t {
		if strings.TrimSpace(name) == "" {
			return errors.New("file tree contains an empty name")
		}
		if strings.Contains(name, "/") {
			return fmt.Errorf("file tree name %q must not contain '/'", name)
		}
		if !node.IsFile() {
			if err := node.Directory.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Paths lists every file path in the tree, sorted.
func (t FileTree) Paths() []string {
	var paths []string
	t.walk("", func(path string, _ *FileContent) {
		paths = append(paths, path)
	})
	sort.Strings(paths)
	return paths
}

// FileCount returns the number of file leaves.
func (t FileTree) FileCount() int {
	count := 0
	t.walk("", func(string, *FileContent) { count++ })
	return count
}

func (t FileTree) walk(prefix string, fn func(path string, file *FileContent)) {
	for name, node := range t {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		if node.IsFile() {
			fn(path, node.File)
			continue
		}
		node.Directory.walk(path, fn)
	}
}

// ToDocument converts the tree into generic maps, the form stored in document
// databases.
func (t FileTree) ToDocument() (map[string]interface{}, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseFileTree decodes a JSON encoded tree. Empty input and null give an
// empty tree.
func ParseFileTree(data []byte) (FileTree, error) {
	tree := FileTree{}
	if len(bytes.TrimSpace(data)) == 0 {
		return tree, nil
	}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		tree = FileTree{}
	}
	return tree, nil
}
