package source

import (
	"fmt"
	"os"
	"sort"

	"fortio.org/safecast"
)

// FileID uniquely identifies a source file within a FileSet.
type FileID uint32

// NoFileID is the zero FileID; spans with it carry no file association.
const NoFileID FileID = 0

// File captures metadata and content for a single source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	lineIdx []uint32
}

// LineCol is a human-readable position, 1-based.
type LineCol struct {
	Line uint32
	Col  uint32
}

// FileSet manages the source files of one compilation and resolves
// spans back to line/column positions for diagnostics.
type FileSet struct {
	files []File
	index map[string]FileID
}

func NewFileSet() *FileSet {
	return &FileSet{
		index: make(map[string]FileID),
	}
}

// AddVirtual registers in-memory content under the given path.
func (fs *FileSet) AddVirtual(path string, content []byte) (FileID, error) {
	if existing, ok := fs.index[path]; ok {
		return existing, fmt.Errorf("source: duplicate file %q (id %d)", path, existing)
	}
	raw, err := safecast.Conv[uint32](len(fs.files) + 1)
	if err != nil {
		return NoFileID, fmt.Errorf("source: file id overflow: %w", err)
	}
	id := FileID(raw)
	fs.files = append(fs.files, File{
		ID:      id,
		Path:    path,
		Content: content,
		lineIdx: buildLineIndex(content),
	})
	fs.index[path] = id
	return id, nil
}

// Load reads path from disk and registers it.
func (fs *FileSet) Load(path string) (FileID, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return NoFileID, fmt.Errorf("source: %w", err)
	}
	return fs.AddVirtual(path, content)
}

// Get returns the file for id, or nil for an unknown id.
func (fs *FileSet) Get(id FileID) *File {
	if id == NoFileID || int(id) > len(fs.files) {
		return nil
	}
	return &fs.files[id-1]
}

// Len returns the number of registered files.
func (fs *FileSet) Len() int {
	return len(fs.files)
}

// Position resolves a byte offset within a file to 1-based line/column.
func (fs *FileSet) Position(id FileID, offset uint32) (LineCol, bool) {
	f := fs.Get(id)
	if f == nil {
		return LineCol{}, false
	}
	if int(offset) > len(f.Content) {
		return LineCol{}, false
	}
	line := sort.Search(len(f.lineIdx), func(i int) bool {
		return f.lineIdx[i] > offset
	})
	lineStart := uint32(0)
	if line > 0 {
		lineStart = f.lineIdx[line-1]
	}
	lineNo, err := safecast.Conv[uint32](line + 1)
	if err != nil {
		return LineCol{}, false
	}
	return LineCol{Line: lineNo, Col: offset - lineStart + 1}, true
}

// buildLineIndex records the byte offset that follows each newline.
func buildLineIndex(content []byte) []uint32 {
	var idx []uint32
	for i, b := range content {
		if b == '\n' {
			idx = append(idx, uint32(i+1)) //nolint:gosec // bounded by file size
		}
	}
	return idx
}
