// Package detectors creates, configures, trains, and runs detectors, and
// downloads the GeoJSON results of detection runs.
package detectors
