// Package cli constructs the geodetect command-line interface, wiring the
// Cobra command hierarchy, configuration loader, credential resolution, and
// structured logging. Commands are grouped by verb (list, get, create, edit,
// delete) with train, detect, and download at the top level.
package cli
