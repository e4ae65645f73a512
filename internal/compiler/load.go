package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/qsched/internal/ir"
)

// Load reads a program from path and decodes it.
//
//   - a directory is loaded as one CUE package (every .cue file in it)
//   - a .cue file is compiled on its own
//   - a .json file is compiled as CUE (JSON is a subset of CUE)
//
// The program is either the top-level `program` field or, if there is none,
// the whole file. Load does not validate; call Validate on the result.
func Load(path string) (*ir.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}

	if info.IsDir() {
		v, err := buildDir(path)
		if err != nil {
			return nil, err
		}
		return CompileProgram(programValue(v))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	return LoadBytes(path, data)
}

// LoadBytes compiles src (CUE or JSON) and decodes the program in it.
// filename is used for error positions only.
func LoadBytes(filename string, src []byte) (*ir.Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(programValue(v))
}

func buildDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("load program: no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("load program: %w", formatCUEError(inst.Err))
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

func programValue(v cue.Value) cue.Value {
	if p := v.LookupPath(cue.ParsePath("program")); p.Exists() {
		return p
	}
	return v
}

// IsProgramFile reports whether path has an extension Load accepts as a file.
func IsProgramFile(path string) bool {
	switch filepath.Ext(path) {
	case ".cue", ".json":
		return true
	}
	return false
}
