package internal

// FnModeOptions carries the run mode shared by the CLI, the terminal remote and the hub.
type FnModeOptions struct {
	// Debug enables request/response logging in receiver clients.
	Debug bool
	// Test replaces the network with the in-process receiver simulator.
	Test bool
}

type FnModeOption func(*FnModeOptions)

func WithDebug(debug bool) FnModeOption {
	return func(opts *FnModeOptions) {
		opts.Debug = debug
	}
}

func WithTest(test bool) FnModeOption {
	return func(opts *FnModeOptions) {
		opts.Test = test
	}
}

func NewModeOptions(options ...FnModeOption) *FnModeOptions {
	opts := &FnModeOptions{}
	for _, option := range options {
		option(opts)
	}
	return opts
}
