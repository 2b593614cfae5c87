package tiling

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/mask-tools/internal/imaging"
)

// LoadSource reads the image at imagePath and every instance mask under
// masksDir. Files directly in masksDir belong to defaultClass; files in a
// "<class>_masks" subdirectory belong to that class. Instances are ordered
// by class name, then by file name.
func LoadSource(imagePath, masksDir, defaultClass string) (Source, error) {
	img, err := imaging.LoadImage(imagePath)
	if err != nil {
		return Source{}, fmt.Errorf("failed to load source image: %w", err)
	}
	src := Source{Name: filepath.Base(imagePath), Image: img}
	if masksDir == "" {
		return src, nil
	}

	byClass := make(map[string][]string)
	root, err := imaging.DiscoverMasks(masksDir)
	if err != nil {
		return Source{}, err
	}
	byClass[defaultClass] = append(byClass[defaultClass], root...)

	entries, err := os.ReadDir(masksDir)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read mask directory: %w", err)
	}
	for _, e := range entries {
		class, ok := strings.CutSuffix(e.Name(), "_masks")
		if !e.IsDir() || !ok || class == "" {
			continue
		}
		paths, err := imaging.DiscoverMasks(filepath.Join(masksDir, e.Name()))
		if err != nil {
			return Source{}, err
		}
		byClass[class] = append(byClass[class], paths...)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		for _, p := range byClass[class] {
			m, err := imaging.LoadMask(p)
			if err != nil {
				return Source{}, err
			}
			src.Instances = append(src.Instances, Instance{Class: class, Mask: m})
		}
	}
	return src, nil
}
