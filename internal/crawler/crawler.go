package crawler

import (
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Options controls which files a walk yields.
type Options struct {
	// Extensions whitelists file suffixes, e.g. ".ts". Empty means defaults.
	Extensions []string
	// Exclude lists directory names that disqualify a subtree.
	// Empty means defaults.
	Exclude []string
}

// DefaultExtensions are the source-file suffixes indexed by default.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

// DefaultExclude covers build output, dependency and version-control
// directories.
var DefaultExclude = []string{
	"node_modules",
	"dist",
	"build",
	".next",
	"coverage",
	".turbo",
	"out",
	".git",
}

// File is one walk result.
type File struct {
	// Path is the on-disk path.
	Path string
	// Rel is the repository-relative path with forward slashes.
	Rel string
}

// Walk enumerates source files under root, honoring the extension whitelist,
// the exclusion list and the repository's .gitignore when present.
func Walk(root string, opts Options) ([]File, error) {
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exclude := opts.Exclude
	if len(exclude) == 0 {
		exclude = DefaultExclude
	}

	// A missing or unreadable .gitignore just disables gitignore filtering.
	ignore, _ := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if excluded(rel, exclude) || (ignore != nil && ignore.MatchesPath(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(d.Name())
		for _, want := range extensions {
			if ext == want {
				files = append(files, File{Path: path, Rel: rel})
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func excluded(rel string, names []string) bool {
	for _, part := range strings.Split(rel, "/") {
		for _, name := range names {
			if part == name {
				return true
			}
		}
	}
	return false
}
