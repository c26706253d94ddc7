// Package changelog defines the deployment changelog model for deploylog.
//
// This package implements:
//   - The CommitSpecifier sum type (explicit range or deployed environment)
//   - The ResolvedRange, Commit, ChangeRequest, Issue and Changelog model
//   - The domain error taxonomy shared by the resolver and the engine
//   - Issue-key extraction from free text
//   - Deterministic text, markdown and terminal rendering
//   - JSON and YAML decoding with invariant validation
//
// A Changelog is built once by the aggregation engine and is read-only
// afterwards, so it can be rendered or serialized concurrently.
package changelog
