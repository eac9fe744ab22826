package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var de *DocError
	if !stderrors.As(err, &de) {
		de = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", de.Message))
	if de.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", de.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", de.Code))
	return sb.String()
}

// LogArgs returns slog key-value args describing err, for use as
// slog.Warn("msg", errors.LogArgs(err)...).
func LogArgs(err error) []any {
	if err == nil {
		return nil
	}

	var de *DocError
	if !stderrors.As(err, &de) {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", de.Code),
		slog.String("error", de.Message),
		slog.String("category", string(de.Category)),
	}
	if de.Cause != nil {
		attrs = append(attrs, slog.String("cause", de.Cause.Error()))
	}
	for k, v := range de.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
