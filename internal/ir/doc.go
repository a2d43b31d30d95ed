// Package ir provides the constrained value model shared by the content graph,
// the index backends, and the query pipeline.
//
// This package contains type definitions and encoders only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Value is a sealed interface (Null, String, Int, Bool, List, Object)
//   - Fingerprints use RFC 8785 canonical JSON with domain-separated SHA-256
package ir
