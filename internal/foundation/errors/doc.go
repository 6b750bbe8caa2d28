// Package errors provides the classified error primitives used across reportbuilder.
//
// Every error that crosses a package boundary is a ClassifiedError carrying a
// category, a severity, a retry hint, structured context and (optionally) the
// underlying cause. The categories mirror the failure taxonomy of the build
// pipeline:
//
//   - CategoryConfig: unknown output kind, missing or invalid unit directory
//   - CategoryAlreadyExists: provisioning collision under the "fail" policy
//   - CategoryBuild: the external engine returned a non-zero status
//   - CategoryFileSystem: I/O failures during provisioning or version copies
//
// Example usage:
//
//	err := errors.FileSystemError("create unit skeleton").
//		WithCause(ioErr).
//		WithContext("path", root).
//		Build()
//
// The HTTP and CLI adapters translate categories into status and exit codes.
package errors
