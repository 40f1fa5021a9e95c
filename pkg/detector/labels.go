package detector

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Labels is the class index to name table. It is copied on construction and never
// mutated afterwards, so it is safe to share between sessions.
type Labels struct {
	names []string
}

func NewLabels(names []string) Labels {
	return Labels{names: append([]string(nil), names...)}
}

// LoadLabels reads one class name per line; line N (from 0) names class index N.
// Trailing blank lines are ignored, interior ones are kept so indices do not shift.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Labels{}, errors.Wrap(err, "could not open labels file")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Labels{}, errors.Wrap(err, "could not read labels file")
	}

	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return Labels{}, errors.Errorf("labels file %q is empty", path)
	}
	return Labels{names: names}, nil
}

// ResolveLabels picks the label table at startup: an explicit file wins, then the
// capability's own names, otherwise an empty table (numeric labels).
func ResolveLabels(capability Capability, path string) (Labels, error) {
	if path != "" {
		return LoadLabels(path)
	}
	if named, ok := capability.(Named); ok {
		return NewLabels(named.Names()), nil
	}
	return Labels{}, nil
}

// Name resolves a class index. An empty table falls back to the decimal index.
func (l Labels) Name(index int) (string, error) {
	if len(l.names) == 0 {
		return strconv.Itoa(index), nil
	}
	if index < 0 || index >= len(l.names) {
		return "", errors.Errorf("class index %d outside label table of %d entries", index, len(l.names))
	}
	return l.names[index], nil
}

func (l Labels) Len() int {
	return len(l.names)
}

func (l Labels) Names() []string {
	return append([]string(nil), l.names...)
}
