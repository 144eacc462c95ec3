// Package annotations uploads annotation documents (outlines and training,
// testing, or validation areas) for a raster used to train a detector.
package annotations
