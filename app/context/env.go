package context

import "os"

// Environment is the interface to the process environment.
type Environment interface {
	Get(string) string
	Set(string, string) error
}

// OSEnv is the environment of the running process.
type OSEnv struct{}

var _ Environment = OSEnv{}

// Get returns the value of the environment variable key.
func (OSEnv) Get(key string) string {
	return os.Getenv(key)
}

// Set sets the environment variable key to val.
func (OSEnv) Set(key, val string) error {
	return os.Setenv(key, val)
}
