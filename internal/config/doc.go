// Package config handles configuration loading for chat-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation; timing defaults are applied by the chat
// service for any duration left unset.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	assistant:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	chat:
//	  processing_staleness: "5m"
//	  thread_expiration: "24h"
//	  run_retry_delay: "2s"
//	  run_poll_timeout: "30s"
//	  run_poll_interval: "1s"
//	  lock_timeout: "2s"
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/chat-gateway/gateway.db"
//
// Assistant API:
//
//	assistant:
//	  api_key: "${OPENAI_API_KEY}"
//	  assistant_id: "asst_..."
//	  base_url: ""           # optional endpoint override
//
// Tool dispatch endpoints:
//
//	tools:
//	  job_listings_url: "http://jobs.internal/api/listings"
//	  course_recommendations_url: "http://courses.internal/api/recommendations"
//	  job_limit: 3
//	  request_timeout: "10s"
//
// Retention janitor:
//
//	janitor:
//	  enabled: true
//	  schedule: "0 * * * *"  # hourly
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
