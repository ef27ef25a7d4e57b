// Package plugin defines the wire types of the host platform's plugin
// protocol: the request and response envelopes, the raw block-and-tag inputs,
// the output block-type declaration, usage reports, and the platform's
// generic error envelope.
//
// The protocol is fixed by the host. A generator plugin implements two
// operations:
//
//	DetermineOutputBlockTypes(Request[RawBlockAndTagInput]) (Response[BlockTypeOutput], error)
//	Run(Request[RawBlockAndTagInputWithBlocks]) (Response[RawBlockAndTagOutput], error)
//
// The first declares how many output blocks the host must pre-allocate and
// with which MIME types. The second performs the generation, streaming into
// those blocks, and returns usage records for billing.
//
// Every failure a plugin surfaces to the host is an *Error. Wrap foreign
// errors with AsError before returning them across the protocol boundary.
package plugin
