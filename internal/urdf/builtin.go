package urdf

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed models/*.urdf
var builtinFS embed.FS

// BuiltinPrefix marks a model reference as one of the embedded models.
const BuiltinPrefix = "builtin:"

const (
	// BuiltinPlane is the static ground plane used as the default scene.
	BuiltinPlane = BuiltinPrefix + "plane"
	// BuiltinMinitaur is the eight-motor quadruped.
	BuiltinMinitaur = BuiltinPrefix + "minitaur"
)

// Builtins returns the embedded model names, sorted.
func Builtins() []string {
	entries, err := builtinFS.ReadDir("models")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".urdf"))
	}
	sort.Strings(names)
	return names
}

// LoadBuiltin parses one of the embedded models by bare name.
func LoadBuiltin(name string) (*Model, error) {
	data, err := builtinFS.ReadFile("models/" + name + ".urdf")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin model %q", name)
	}
	m, err := ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("builtin model %s: %w", name, err)
	}
	return m, nil
}

// Open resolves a model reference. References with the builtin: prefix load
// an embedded model; anything else is treated as a filesystem path.
func Open(ref string) (*Model, error) {
	if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
		return LoadBuiltin(name)
	}
	return LoadFile(ref)
}
