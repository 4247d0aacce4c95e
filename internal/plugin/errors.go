package plugin

import "errors"

var (
	// ErrNotFound is returned when no plugin with the given id is registered.
	ErrNotFound = errors.New("plugin: not found")

	// ErrAlreadyExists is returned when registering a plugin whose id is
	// already taken.
	ErrAlreadyExists = errors.New("plugin: already exists")

	// ErrNotLoaded is returned when an operation needs a live plugin context
	// but the plugin is unloaded or failed.
	ErrNotLoaded = errors.New("plugin: not loaded")

	// ErrInvalidManifest is returned when a manifest is missing required
	// fields or cannot be parsed.
	ErrInvalidManifest = errors.New("plugin: invalid manifest")

	// ErrNoScript is returned when a manifest carries neither inline script
	// nor a script URL.
	ErrNoScript = errors.New("plugin: manifest has no script")
)
