// Package log is the structured logging layer shared by the node and the CLI.
//
// Logger is a small key-value interface with three implementations:
//
//   - ZapLogger writes console, logfmt or JSON lines through zap
//   - NoopLogger discards everything
//   - SpanLogger forwards each entry to another Logger and mirrors it as an
//     OpenTelemetry span event
//
// Values logged under secret-looking keys (password, private_key, mnemonic, ...) are
// replaced by "[REDACTED]" before they reach any sink, including span attributes.
//
// Loggers travel through request handling in a context.Context:
//
//	ctx = log.SetContextLogger(ctx, logger.WithName("rpc"))
//	...
//	log.FromContext(ctx).Info("signed message", "address", addr)
package log
