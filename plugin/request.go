package plugin

import "github.com/dockhand/relay/blocks"

// Request is the envelope the host wraps around every plugin invocation.
type Request[T any] struct {
	Data T `json:"data"`
}

// Response is the envelope a plugin returns to the host.
type Response[T any] struct {
	Data T `json:"data"`
}

// RawBlockAndTagInput carries the conversation blocks and per-call options
// for the block-type determination phase.
type RawBlockAndTagInput struct {
	Blocks  []blocks.Block `json:"blocks"`
	Options CallOptions    `json:"options,omitempty"`
}

// RawBlockAndTagInputWithBlocks is the run-phase input: the same blocks and
// options, plus the output blocks the host pre-allocated in streaming state.
type RawBlockAndTagInputWithBlocks struct {
	Blocks       []blocks.Block `json:"blocks"`
	Options      CallOptions    `json:"options,omitempty"`
	OutputBlocks []blocks.Block `json:"outputBlocks"`
}

// BlockTypeOutput declares the MIME types of the blocks the host must
// pre-allocate, one entry per expected output block.
type BlockTypeOutput struct {
	BlockTypesToCreate []string `json:"blockTypesToCreate"`
}

// RawBlockAndTagOutput is the run-phase result. The generated content lives
// in the pre-allocated blocks; only usage travels back in the envelope.
type RawBlockAndTagOutput struct {
	Usage []UsageReport `json:"usage,omitempty"`
}
