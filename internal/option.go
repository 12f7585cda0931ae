package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStdin sets where confirmation answers are read from.
func WithStdin(r io.Reader) Option {
	return func(a *application) {
		a.stdin = r
	}
}

// WithStdout sets where plans, prompts and summaries are printed.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithStderr sets where the log is mirrored in verbose mode.
func WithStderr(w io.Writer) Option {
	return func(a *application) {
		a.stderr = w
	}
}

// WithVerbose lowers the log level to debug and mirrors the log to stderr.
func WithVerbose(v bool) Option {
	return func(a *application) {
		a.verbose = v
	}
}
