package tiling

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout names the files of a tiled dataset rooted at Root:
//
//	<root>/section-<i>/images/section-<i>.<ext>
//	<root>/section-<i>/images/section-<i><suffix>.<ext>    (one per extra channel)
//	<root>/section-<i>/<class>_masks/section-<i>-mask-<j>.<ext>
type Layout struct {
	Root string
	Ext  string
}

// SectionName returns "section-<i>".
func SectionName(index int) string {
	return fmt.Sprintf("section-%d", index)
}

// MaskDirName returns the per-class mask directory name.
func MaskDirName(class string) string {
	return class + "_masks"
}

// SectionDir returns the directory holding every file of tile index.
func (l Layout) SectionDir(index int) string {
	return filepath.Join(l.Root, SectionName(index))
}

// ImagePath returns the image crop path relative to a section directory.
func (l Layout) ImagePath(index int) string {
	return filepath.Join("images", SectionName(index)+"."+l.Ext)
}

// ChannelPath returns the path of an extra channel crop relative to a section
// directory.
func (l Layout) ChannelPath(index int, suffix string) string {
	return filepath.Join("images", SectionName(index)+suffix+"."+l.Ext)
}

// MaskPath returns the path of mask j of class relative to a section directory.
func (l Layout) MaskPath(index int, class string, j int) string {
	return filepath.Join(MaskDirName(class), fmt.Sprintf("%s-mask-%d.%s", SectionName(index), j, l.Ext))
}

// EnsureDir makes sure path exists as a directory. An existing directory is
// not an error; an existing non-directory is.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return nil
}
