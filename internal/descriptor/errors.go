package descriptor

import "errors"

var (
	// ErrNoEntries indicates the descriptor declares no entry points
	ErrNoEntries = errors.New("no entry points declared")
	// ErrEmptyEntry indicates an entry point has no name or no source files
	ErrEmptyEntry = errors.New("entry point has no source files")
	// ErrDuplicateEntry indicates two entry points share a name
	ErrDuplicateEntry = errors.New("duplicate entry point")
	// ErrNoOutput indicates the output directory or filename is missing
	ErrNoOutput = errors.New("output path and filename are required")
	// ErrInvalidOutput indicates the output filename cannot hold every entry point
	ErrInvalidOutput = errors.New("invalid output location")
	// ErrInvalidPattern indicates a rule test or exclude pattern failed to compile
	ErrInvalidPattern = errors.New("invalid rule pattern")
	// ErrNoTransformers indicates a rule lists no transformers
	ErrNoTransformers = errors.New("rule has no transformers")
	// ErrSelfDefeatingRule indicates a rule excludes its own target directory
	ErrSelfDefeatingRule = errors.New("rule excludes its own target directory")
	// ErrUnnamedPlugin indicates a plugin was declared without an identifier
	ErrUnnamedPlugin = errors.New("plugin has no name")
	// ErrEntryNotFound indicates a declared entry file does not exist
	ErrEntryNotFound = errors.New("entry file not found")
	// ErrUnsupportedFormat indicates a descriptor file extension is not recognised
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")
)
