package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoverClasses(t *testing.T) {
	root := prepareDirectory(t, 2, 7, false, false)
	// Files in the root and non-image files are not indexed.
	writeImages(t, root, []string{"."}, 3, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "class_0", "notes.txt"), []byte("x"), 0o644))

	found, err := discoverClasses(root, nil, false)
	require.NoError(t, err)
	require.Equal(t, []string{"class_0", "class_1"}, found.classNames)
	require.Len(t, found.files, 7)
	require.Equal(t, []int{0, 0, 0, 0, 1, 1, 1}, found.fileClass)
	for i, f := range found.files {
		require.Equal(t, found.classNames[found.fileClass[i]], filepath.Base(filepath.Dir(f)))
	}
	// Sorted within a class.
	require.Equal(t, filepath.Join(root, "class_0", "image_0.jpg"), found.files[0])
	require.Equal(t, filepath.Join(root, "class_0", "image_2.jpg"), found.files[1])
}

func TestDiscoverClassesOrderedByClassNames(t *testing.T) {
	root := prepareDirectory(t, 3, 6, false, true)
	found, err := discoverClasses(root, []string{"class_2", "class_0", "class_1"}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"class_2", "class_0", "class_1"}, found.classNames)
	require.Equal(t, []string{"class_0", "class_1", "class_2"}, found.allClassDirs)
	require.Equal(t, []int{0, 0, 1, 1, 2, 2}, found.fileClass)
	require.Equal(t, "class_2", filepath.Base(filepath.Dir(found.files[0])))
}

func TestDiscoverClassesNested(t *testing.T) {
	root := prepareDirectory(t, 2, 16, true, false)
	found, err := discoverClasses(root, nil, false)
	require.NoError(t, err)
	require.Len(t, found.files, 16)
	count := map[int]int{}
	for _, c := range found.fileClass {
		count[c]++
	}
	require.Equal(t, map[int]int{0: 8, 1: 8}, count)
}

func TestDiscoverClassesSymlinks(t *testing.T) {
	root := prepareDirectory(t, 2, 4, false, false)
	extra := t.TempDir()
	writeImages(t, extra, []string{"."}, 3, true)

	// A linked directory inside a class is only walked with followLinks.
	require.NoError(t, os.Symlink(extra, filepath.Join(root, "class_0", "linked")))
	// A link back to the class itself must not loop.
	require.NoError(t, os.Symlink(filepath.Join(root, "class_1"), filepath.Join(root, "class_1", "loop")))

	found, err := discoverClasses(root, nil, false)
	require.NoError(t, err)
	require.Len(t, found.files, 4)

	found, err = discoverClasses(root, nil, true)
	require.NoError(t, err)
	require.Len(t, found.files, 7)

	// A linked directory at the top level is a class.
	require.NoError(t, os.Symlink(extra, filepath.Join(root, "class_9")))
	found, err = discoverClasses(root, nil, false)
	require.NoError(t, err)
	require.Equal(t, []string{"class_0", "class_1", "class_9"}, found.classNames)
	require.Len(t, found.files, 7)
}

func TestDiscoverClassesMissingRoot(t *testing.T) {
	_, err := discoverClasses(filepath.Join(t.TempDir(), "missing"), nil, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to list directory")
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.Gif", "e.bmp"} {
		require.True(t, isImageFile(name), name)
	}
	for _, name := range []string{"a.txt", "b", "c.tiff", "jpg"} {
		require.False(t, isImageFile(name), name)
	}
}
