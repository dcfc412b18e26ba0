package runner

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/couchjs/internal/textenc"
)

// ErrNoMatch is returned when a glob argument matches no files.
var ErrNoMatch = errors.New("pattern matched no files")

// ExpandPaths expands arguments containing glob metacharacters, including
// "**", into the sorted list of matching files. Other arguments are kept
// as given, in order.
func ExpandPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if !isPattern(arg) {
			paths = append(paths, arg)
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, arg, ErrNoMatch)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func isPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}

// LoadScript reads a script file and returns its source as UTF-8.
func LoadScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !textenc.IsText(data) {
		return "", textenc.ErrBinary
	}
	return textenc.ToUTF8(data, "")
}
