// Package ir provides the shared data model for the assetpack bundler.
//
// This package contains type definitions, the error taxonomy, content hashing
// and canonical JSON. All other internal packages import ir; ir imports nothing
// internal, so it stays the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Module identity is the module's path relative to the project root with
//     forward slashes, never an absolute path, so rendered chunks are
//     machine independent
//   - Every ordered collection exposed to rendering is sorted by module id
//   - Artifact digests are computed over the bytes on disk after extraction
//   - Generations are logical counters, never wall-clock timestamps
package ir
