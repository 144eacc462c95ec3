// Package pathutils normalizes user supplied file system paths such as raster
// files, key files, and download destinations.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	tildeSymbolConstant = "~"
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// EnvironmentLookup resolves environment variable values.
type EnvironmentLookup func(key string) (string, bool)

// HomeExpander converts "~" prefixes and $VARIABLE references into concrete paths.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	environmentLookup     EnvironmentLookup
	homeDirectory         string
	homeDirectoryError    error
	initializationGuard   sync.Once
}

// NewHomeExpander constructs a HomeExpander using the operating system lookups.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProviders(os.UserHomeDir, os.LookupEnv)
}

// NewHomeExpanderWithProviders constructs a HomeExpander with custom lookups. Nil values fall back to the operating system.
func NewHomeExpanderWithProviders(homeDirectoryProvider HomeDirectoryProvider, environmentLookup EnvironmentLookup) *HomeExpander {
	if homeDirectoryProvider == nil {
		homeDirectoryProvider = os.UserHomeDir
	}
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &HomeExpander{homeDirectoryProvider: homeDirectoryProvider, environmentLookup: environmentLookup}
}

// Expand trims the path, substitutes environment references, and resolves a leading tilde.
// Unknown variables expand to empty strings, matching shell behavior.
func (expander *HomeExpander) Expand(candidatePath string) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if expander == nil || len(trimmedPath) == 0 {
		return trimmedPath
	}

	expandedPath := os.Expand(trimmedPath, func(variableName string) string {
		variableValue, _ := expander.environmentLookup(variableName)
		return variableValue
	})

	if !strings.HasPrefix(expandedPath, tildeSymbolConstant) {
		return expandedPath
	}

	remainder := strings.TrimPrefix(expandedPath, tildeSymbolConstant)
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		// ~user forms are left untouched.
		return expandedPath
	}

	resolvedHomeDirectory := expander.resolveHomeDirectory()
	if len(resolvedHomeDirectory) == 0 {
		return expandedPath
	}

	return filepath.Join(resolvedHomeDirectory, remainder)
}

// ExpandAll expands every path and drops entries that end up empty.
func (expander *HomeExpander) ExpandAll(candidatePaths []string) []string {
	expandedPaths := make([]string, 0, len(candidatePaths))
	for _, candidatePath := range candidatePaths {
		expandedPath := expander.Expand(candidatePath)
		if len(expandedPath) == 0 {
			continue
		}
		expandedPaths = append(expandedPaths, expandedPath)
	}
	return expandedPaths
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.initializationGuard.Do(func() {
		expander.homeDirectory, expander.homeDirectoryError = expander.homeDirectoryProvider()
	})
	if expander.homeDirectoryError != nil {
		return ""
	}
	return expander.homeDirectory
}
