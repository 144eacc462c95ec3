// Package rasters manages uploaded imagery: listing, inspection, edits,
// deletion, presigned uploads with duplicate detection, and detection-area
// uploads. It also exposes the Cobra subcommands that drive those operations.
package rasters
