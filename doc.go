// Package relay adapts host-managed conversational blocks to chat-completion
// providers. A Generator reads tagged input blocks, translates them into a
// role-ordered message list, routes the request to the upstream matching the
// model name, and streams the sampled choices back into output blocks the
// host pre-allocated. Content moderation guards both directions, and usage
// is reported exactly when the call ran on the plugin's own credentials.
package relay
