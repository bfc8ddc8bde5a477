package host

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gnana997/compreg/pkg/util"
)

// DirEmitter writes assets below Dir. Used when no build host owns the
// output, e.g. the scan command.
type DirEmitter struct {
	Dir string
}

// EmitAsset writes data to Dir/name through a temp file and rename. Names
// escaping Dir are rejected.
func (e DirEmitter) EmitAsset(name string, data []byte) error {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("asset name %q escapes output directory", name)
	}
	return util.WriteFileAtomic(filepath.Join(e.Dir, clean), data, 0644)
}
