package datasets

import (
	"path/filepath"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/xslices"
)

// allowedFormats are the file extensions indexed as images.
var allowedFormats = []string{".bmp", ".gif", ".jpeg", ".jpg", ".png"}

func isImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range allowedFormats {
		if ext == allowed {
			return true
		}
	}
	return false
}

// identity returns [0, 1, ..., n-1].
func identity(n int) []int {
	if n == 0 {
		return nil
	}
	return xslices.Iota(0, n)
}

// groupByClass returns, for each class index, the file indices labeled with it.
func groupByClass(fileClass []int, numClasses int) [][]int {
	pools := make([][]int, numClasses)
	for fileIdx, class := range fileClass {
		pools[class] = append(pools[class], fileIdx)
	}
	return pools
}
