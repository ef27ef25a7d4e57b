// Package provider defines the abstraction over upstream chat-completion
// services. A Completer turns CompletionParams into a stream of events; the
// concrete routing across providers and credentials lives in
// provider/router.
//
// The streaming model uses four event types:
//
//  1. Delim: delimiter events marking stream boundaries ("start", "end")
//  2. Chunk: an incremental text or function-call fragment for one choice
//  3. Response: the completed result for every choice, with token usage
//  4. Error: a failure, carrying the run ID for correlation
//
// Events serialize with a "type" discriminator so they can cross process
// boundaries; the codecs are tolerant of unknown sibling fields.
package provider
