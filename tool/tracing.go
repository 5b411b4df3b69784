package tool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pithecene-io/vsixctl/tool"

// startExecSpan starts a span for one tool invocation. The span carries the
// subcommand words only, never flag values.
func startExecSpan(ctx context.Context, name string, args []string, captureJSON bool) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "tool.execute")
	span.SetAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.subcommand", subcommand(args)),
		attribute.Bool("tool.capture_json", captureJSON),
	)
	return ctx, span
}

func endExecSpan(span trace.Span, exitCode int, err error) {
	span.SetAttributes(attribute.Int("tool.exit_code", exitCode))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case exitCode != 0:
		span.SetStatus(codes.Error, "non-zero exit")
	}
	span.End()
}

// subcommand returns the leading non-flag arguments, e.g. "extension publish".
func subcommand(args []string) string {
	out := ""
	for _, a := range args {
		if len(a) > 0 && a[0] == '-' {
			break
		}
		if out != "" {
			out += " "
		}
		out += a
	}
	return out
}
