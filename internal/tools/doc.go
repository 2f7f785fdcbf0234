// ABOUTME: Package documentation for the tools package
// ABOUTME: Explains tool dispatch against internal services

// Package tools executes assistant-requested function calls against the
// internal job-listing and course-recommendation services.
//
// Every dispatch returns a JSON string, never an error: downstream failures
// and unknown tool names are encoded as {"error": ...} payloads so one
// failing call in a batch cannot abort its siblings. The caller's bearer
// token or cookie is forwarded unchanged.
package tools
