package repofetch

import (
	"sort"
	"strings"
)

// Snapshot is the fetched content of one repository at one commit,
// held in memory. Paths are slash-separated and relative to the repo
// root.
type Snapshot struct {
	RepoURL   string
	CommitSHA string

	files map[string][]byte
}

func NewSnapshot(repoURL, commitSHA string) *Snapshot {
	return &Snapshot{
		RepoURL:   repoURL,
		CommitSHA: commitSHA,
		files:     make(map[string][]byte),
	}
}

func (s *Snapshot) AddFile(path string, content []byte) {
	s.files[path] = content
}

// File returns the content of a path, nil if absent.
func (s *Snapshot) File(path string) []byte {
	return s.files[path]
}

// Lookup finds a file by name, ignoring case and directory. Useful for
// README.md vs readme.md style differences.
func (s *Snapshot) Lookup(name string) ([]byte, bool) {
	lower := strings.ToLower(name)
	for path, content := range s.files {
		base := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			base = path[i+1:]
		}
		if strings.ToLower(base) == lower {
			return content, true
		}
	}
	return nil, false
}

// Paths lists all file paths in deterministic order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// TotalSize is the sum of all file sizes in bytes.
func (s *Snapshot) TotalSize() int64 {
	var total int64
	for _, c := range s.files {
		total += int64(len(c))
	}
	return total
}
