package fixturetypes

import "errors"

// Stage names the fixture step an error came from.
type Stage string

// Fixture stages, in the order a run goes through them.
const (
	StageSetup      Stage = "setup"
	StageInstall    Stage = "install"
	StageConfig     Stage = "config"
	StagePipeline   Stage = "pipeline"
	StageCollection Stage = "collection"
)

// Sentinel errors.
var (
	ErrOutputNotAbsolute = errors.New("pipeline output directory is not an absolute path")
	ErrServerClosed      = errors.New("server is shut down")
	ErrInvalidPath       = errors.New("invalid fixture path")
)

// FixtureError is the common shape of every harness error. The message is the
// underlying error's, prefixed with the operation, so callers see the pipeline
// or filesystem failure as it was raised.
type FixtureError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *FixtureError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *FixtureError) Unwrap() error { return e.Err }

// SetupError reports a workspace creation or materialization failure.
type SetupError struct{ FixtureError }

// InstallError reports a dependency installation failure.
type InstallError struct{ FixtureError }

// ConfigError reports a configuration that could not be loaded or violates the
// harness contract.
type ConfigError struct{ FixtureError }

// PipelineError reports a build, prepare or server failure.
type PipelineError struct{ FixtureError }

// CollectionError reports an output file that could not be read as text.
type CollectionError struct{ FixtureError }

// NewSetupError wraps err as a SetupError.
func NewSetupError(op string, err error) error {
	return &SetupError{FixtureError{Stage: StageSetup, Op: op, Err: err}}
}

// NewInstallError wraps err as an InstallError.
func NewInstallError(op string, err error) error {
	return &InstallError{FixtureError{Stage: StageInstall, Op: op, Err: err}}
}

// NewConfigError wraps err as a ConfigError.
func NewConfigError(op string, err error) error {
	return &ConfigError{FixtureError{Stage: StageConfig, Op: op, Err: err}}
}

// NewPipelineError wraps err as a PipelineError.
func NewPipelineError(op string, err error) error {
	return &PipelineError{FixtureError{Stage: StagePipeline, Op: op, Err: err}}
}

// NewCollectionError wraps err as a CollectionError.
func NewCollectionError(op string, err error) error {
	return &CollectionError{FixtureError{Stage: StageCollection, Op: op, Err: err}}
}

// StageOf reports the fixture stage of err, or "" when err is not a harness error.
func StageOf(err error) Stage {
	var staged interface{ stage() Stage }
	if errors.As(err, &staged) {
		return staged.stage()
	}
	return ""
}

func (e *FixtureError) stage() Stage { return e.Stage }
