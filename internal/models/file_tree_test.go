package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

const sampleTree = `{
	"package.json": {"file": {"contents": "{\"name\":\"demo\"}"}},
	"src": {"directory": {
		"app.js": {"file": {"contents": "console.log(1)"}},
		"lib": {"directory": {}}
	}}
}`

func TestFileTree_UnmarshalJSON(t *testing.T) {
	var tree FileTree
	if err := json.Unmarshal([]byte(sampleTree), &tree); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !tree["package.json"].IsFile() {
		t.Error("package.json should be a file")
	}
	src := tree["src"]
	if src.IsFile() {
		t.Fatal("src should be a directory")
	}
	if got := src.Directory["app.js"].File.Contents; got != "console.log(1)" {
		t.Errorf("app.js contents = %q", got)
	}
	if lib := src.Directory["lib"]; lib.IsFile() || len(lib.Directory) != 0 {
		t.Errorf("lib should be an empty directory, got %+v", lib)
	}
}

func TestFileTree_RoundTrip(t *testing.T) {
	tree := FileTree{
		"index.html": NewFile("<html></html>"),
		"src": NewDirectory(FileTree{
			"main.go": NewFile("package main"),
			"empty":   NewDirectory(nil),
		}),
	}

	data, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decoded, err := ParseFileTree(data)
	if err != nil {
		t.Fatalf("ParseFileTree() error = %v", err)
	}
	if !reflect.DeepEqual(tree, decoded) {
		t.Errorf("round trip mismatch:\n got  %#v\n want %#v", decoded, tree)
	}
}

func TestFileNode_UnmarshalJSON_Invalid(t *testing.T) {
	invalid := []string{
		`{}`,
		`{"file": {"contents": "a"}, "directory": {}}`,
		`{"folder": {}}`,
		`"just a string"`,
	}

	for _, raw := range invalid {
		var node FileNode
		if err := json.Unmarshal([]byte(raw), &node); err == nil {
			t.Errorf("Unmarshal(%s) should fail", raw)
		}
	}
}

func TestFileTree_Validate(t *testing.T) {
	ok := FileTree{"a.txt": NewFile("")}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() unexpected error = %v", err)
	}

	nested := FileTree{"dir": NewDirectory(FileTree{"x/y.txt": NewFile("")})}
	if err := nested.Validate(); err == nil {
		t.Error("Validate() should reject names containing '/'")
	}

	empty := FileTree{" ": NewFile("")}
	if err := empty.Validate(); err == nil {
		t.Error("Validate() should reject blank names")
	}
}

func TestFileTree_Paths(t *testing.T) {
	var tree FileTree
	if err := json.Unmarshal([]byte(sampleTree), &tree); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := []string{"package.json", "src/app.js"}
	if got := tree.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
	if tree.FileCount() != 2 {
		t.Errorf("FileCount() = %d, want 2", tree.FileCount())
	}
}

func TestParseFileTree_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		tree, err := ParseFileTree([]byte(raw))
		if err != nil {
			t.Fatalf("ParseFileTree(%q) error = %v", raw, err)
		}
		if tree == nil || len(tree) != 0 {
			t.Errorf("ParseFileTree(%q) = %v, want empty tree", raw, tree)
		}
	}
}

func TestFileTree_ToDocument(t *testing.T) {
	tree := FileTree{"a.txt": NewFile("hi")}
	doc, err := tree.ToDocument()
	if err != nil {
		t.Fatalf("ToDocument() error = %v", err)
	}
	file, ok := doc["a.txt"].(map[string]interface{})["file"].(map[string]interface{})
	if !ok || file["contents"] != "hi" {
		t.Errorf("unexpected document %v", doc)
	}
}

func TestIDs(t *testing.T) {
	id := NewID()
	if len(id) != 24 || !IsValidID(id) {
		t.Errorf("NewID() = %q is not a valid id", id)
	}
	if NewID() == id {
		t.Error("NewID() should not repeat")
	}
	for _, bad := range []string{"", "123", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValidID(bad) {
			t.Errorf("IsValidID(%q) should be false", bad)
		}
	}
}
