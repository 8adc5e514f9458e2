// Package api holds the error types shared by steward's packages.
//
// Errors fall into four families, each with an Is* helper that unwraps
// joined and wrapped errors:
//
//   - ValidationError: a resource or request is malformed, or an operation
//     does not apply to the resource kind.
//   - ResolutionError: a link has no eligible target or a port range is
//     exhausted.
//   - ExecutionError: a command failed on a remote host. It carries the host,
//     the argv and the exit code.
//   - NotFoundError: a resource referenced by id does not exist.
//
// The CLI maps these families onto process exit codes.
package api
