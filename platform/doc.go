// Package platform is the client for the host platform's file and block
// storage API. The plugin uses it to read conversation files and to drive the
// lifecycle of pre-allocated streaming blocks: append partial text as it
// arrives, then mark the block complete or aborted.
//
// All API failures decode into the platform error envelope (*plugin.Error),
// so callers can hand them straight back across the plugin protocol.
package platform
