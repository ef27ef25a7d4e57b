// Package blocks models the host platform's unit of conversational content.
//
// A block carries text (or a pointer to media), a MIME type, and a set of tags.
// Tags attach role metadata in one of two historical styles:
//
//  1. kind "role" with the role as the tag name
//  2. kind "chat", name "role", with the role under the "string-value" key of
//     the tag value
//
// Both styles occur in stored conversations and both must resolve to the same
// role. Blocks whose role cannot be resolved are skipped by callers; they are
// never an error.
//
// Streaming blocks additionally carry a stream state. A block allocated for
// streaming starts in StreamStateStarted and must end in either
// StreamStateComplete or StreamStateAborted.
package blocks
