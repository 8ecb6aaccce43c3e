package datasets

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// discovery is the result of indexing a directory of class subdirectories.
type discovery struct {
	root string

	// allClassDirs are the subdirectory names found, sorted.
	allClassDirs []string

	// classNames in class index order: ClassNames if given, allClassDirs otherwise.
	classNames []string

	// files in discovery order: class by class, sorted within a class.
	files []string

	// fileClass[i] is the class index of files[i] by subdirectory.
	fileClass []int
}

// discoverClasses lists the class subdirectories of root and every image file
// below each of them. Files directly under root are not indexed.
func discoverClasses(root string, classNames []string, followLinks bool) (*discovery, error) {
	root, err := fsutil.ReplaceTildeInDir(root)
	if err != nil {
		return nil, errors.WithMessagef(err, "expanding directory %q", root)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list directory %q", root)
	}
	d := &discovery{root: root}
	for _, entry := range entries {
		isDir, err := isDirEntry(root, entry)
		if err != nil {
			return nil, err
		}
		if isDir {
			d.allClassDirs = append(d.allClassDirs, entry.Name())
		}
	}
	sort.Strings(d.allClassDirs)

	d.classNames = d.allClassDirs
	if len(classNames) > 0 {
		d.classNames = classNames
	}
	if !sameNames(d.classNames, d.allClassDirs) {
		// Reported by validateDiscovered.
		return d, nil
	}

	for classIdx, name := range d.classNames {
		visited := make(map[string]bool)
		files, err := listImages(filepath.Join(root, name), followLinks, visited)
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, f := range files {
			d.files = append(d.files, f)
			d.fileClass = append(d.fileClass, classIdx)
		}
	}
	return d, nil
}

// isDirEntry reports whether entry is a directory, resolving symbolic links:
// a link to a directory at the top level is a class like any other.
func isDirEntry(parent string, entry os.DirEntry) (bool, error) {
	if entry.IsDir() {
		return true, nil
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false, nil
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	if err != nil {
		// Dangling link.
		return false, nil
	}
	return info.IsDir(), nil
}

// listImages walks dir recursively and returns the paths of image files.
// Symbolic links to directories are only followed if followLinks is set;
// visited holds resolved directories to break link cycles.
func listImages(dir string, followLinks bool, visited map[string]bool) ([]string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", dir)
	}
	if visited[resolved] {
		return nil, nil
	}
	visited[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list directory %q", dir)
	}
	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.IsDir():
			sub, err := listImages(path, followLinks, visited)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)

		case entry.Type()&os.ModeSymlink != 0:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if !followLinks {
					continue
				}
				sub, err := listImages(path, followLinks, visited)
				if err != nil {
					return nil, err
				}
				files = append(files, sub...)
			} else if isImageFile(path) {
				files = append(files, path)
			}

		case entry.Type().IsRegular() && isImageFile(path):
			files = append(files, path)
		}
	}
	return files, nil
}
