package main

import "time"

// Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	ConfigPath string
	// For tests we can set NonBlocking to avoid infinite block
	NonBlocking     bool
	ShutdownTimeout time.Duration
}

type StatsFlags struct {
	// Remote collector connection
	APIUrl     string
	APIKey     string
	APITimeout time.Duration
}

type CatFlags struct {
	Path       string
	Limit      int
	ErrorsOnly bool
}
