package goanalysis

import (
	"fmt"
	"path"
	"path/filepath"

	"golang.org/x/tools/cover"

	"github.com/unbound-force/mosaic/internal/factory"
)

// Baseline reads a profile written by go test -coverprofile and
// returns the executable lines of the package already covered by its
// existing tests. Profile entries of other packages are ignored.
func (a *Analysis) Baseline(profilePath string) (factory.Baseline, error) {
	profiles, err := cover.ParseProfiles(profilePath)
	if err != nil {
		return nil, fmt.Errorf("parsing cover profile %q: %w", profilePath, err)
	}
	base := make(factory.Baseline)
	methods := a.Program.Methods()
	for _, p := range profiles {
		if path.Dir(p.FileName) != a.PkgPath {
			continue
		}
		file := path.Base(p.FileName)
		for _, m := range methods {
			if filepath.Base(m.File) != file {
				continue
			}
			for _, blk := range p.Blocks {
				if blk.Count == 0 {
					continue
				}
				for _, l := range m.Lines {
					if l >= blk.StartLine && l <= blk.EndLine {
						base.Add(m.Class, m.Name, l)
					}
				}
			}
		}
	}
	return base, nil
}
