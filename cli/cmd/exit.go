package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/vsixctl/tool"
	"github.com/pithecene-io/vsixctl/vsix"
)

// Exit codes.
const (
	exitSuccess  = 0
	exitFailure  = 1 // tool exited non-zero, or invalid input
	exitInternal = 2 // tool resolution or internal failure
	exitSecurity = 3 // archive path rejected
)

// exitCodeFor classifies an error into an exit code.
func exitCodeFor(err error) int {
	var started *toolStartError
	switch {
	case err == nil:
		return exitSuccess
	case vsix.IsSecurityError(err):
		return exitSecurity
	case errors.Is(err, tool.ErrInstallFailed), errors.As(err, &started):
		return exitInternal
	default:
		return exitFailure
	}
}

// toolStartError marks a tool that resolved but could not be started.
type toolStartError struct {
	err error
}

func (e *toolStartError) Error() string { return e.err.Error() }

func (e *toolStartError) Unwrap() error { return e.err }

// fail converts err into a cli exit error. Security rejections are counted
// on env's collector when env is set.
func fail(env *Env, err error) error {
	if err == nil {
		return nil
	}
	code := exitCodeFor(err)
	if code == exitSecurity && env != nil {
		env.Collector.IncSecurityRejection()
	}
	return cli.Exit(err.Error(), code)
}
