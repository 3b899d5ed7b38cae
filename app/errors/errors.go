package errors

import (
	"log/slog"
	"sort"
)

// Attrs returns the metadata of all StructuredErrors in the err tree as slog
// key/value pairs, sorted by key. The cause, if any, comes first.
func Attrs(err error) []any {
	metadata := map[string]any{}
	var cause error
	collect(err, metadata, &cause)

	args := make([]any, 0, len(metadata)*2+2)
	if cause != nil {
		args = append(args, "cause", cause.Error())
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, k, metadata[k])
	}

	return args
}

// collect walks the err tree, giving precedence to the outermost metadata.
func collect(err error, metadata map[string]any, cause *error) {
	if err == nil {
		return
	}

	var serr *StructuredError
	switch e := err.(type) {
	case *StructuredError:
		serr = e
	case StructuredError:
		serr = &e
	}
	if serr != nil {
		for k, v := range serr.metadata {
			if _, ok := metadata[k]; !ok {
				metadata[k] = v
			}
		}
		if *cause == nil && serr.cause != nil {
			*cause = serr.cause
		}
		collect(serr.err, metadata, cause)
		return
	}

	switch e := err.(type) {
	case interface{ Unwrap() error }:
		collect(e.Unwrap(), metadata, cause)
	case interface{ Unwrap() []error }:
		for _, ue := range e.Unwrap() {
			collect(ue, metadata, cause)
		}
	}
}

// Log logs an error with the given logger, or the default slog logger if nil,
// rendering the metadata of any StructuredError it wraps as attributes.
func Log(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Error(err.Error(), Attrs(err)...)
}
