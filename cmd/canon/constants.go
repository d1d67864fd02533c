package main

// Defaults for CLI commands.
const (
	DefaultSearchLimit = 10
	DefaultActor       = "cli"
	DefaultProjectName = "default"
)
