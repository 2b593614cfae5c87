// Package imaging reads and writes the rasters of a segmentation dataset.
//
// Source images and masks may be PNG, JPEG, GIF, TIFF, BMP or WebP; the
// decoders for all of them are registered when the package is imported.
// Masks are binarized on load (see mask.FromImage), so callers only ever see
// *mask.Mask values for them.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. Regions
// are half-open: Min is inclusive, Max exclusive. CropToBox interprets its
// rectangle relative to the image origin, so it behaves the same for
// sub-images whose Bounds().Min is not zero.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The other functions are stateless.
//
// # Output
//
// Encode writes one of the Format values. PNG is the default everywhere a
// format can be omitted; WebP is always written lossless so masks survive a
// round trip unchanged.
package imaging
