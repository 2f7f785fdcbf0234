// ABOUTME: Package documentation for the assistant package
// ABOUTME: Explains the gateway abstraction over the remote assistant API

// Package assistant abstracts the external conversational assistant service.
//
// The Gateway interface covers the six remote operations the chat service
// needs: thread creation, message append, run creation, run polling, batched
// tool-output submission, and latest-message retrieval. OpenAIGateway is the
// production implementation; tests use in-package fakes.
package assistant
