// Package config provides configuration management for the couchjs host.
//
// Configuration is loaded from environment variables with defaults, may be
// overlaid with a YAML or TOML file, and finally overridden by CLI flags
// that were set explicitly.
//
// Configuration Sections:
//   - Engine: root stack budget and collection threshold
//   - Sandbox: evalcx policy, sandbox stack budget and timeout
//   - HTTP: CouchHTTP installation, base URL and transport tuning
//   - Test: test-suite builtins (sleep)
//   - Logging: log level and output format
//   - Metrics: Prometheus textfile export
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if err := config.LoadFile(cfg, "couchjs.yaml"); err != nil {
//		return err
//	}
//
// Environment Variables:
//   - COUCHJS_STACK_SIZE, COUCHJS_GC_THRESHOLD
//   - COUCHJS_EVAL_ENABLED, COUCHJS_SANDBOX_STACK_SIZE, COUCHJS_SANDBOX_TIMEOUT_MS
//   - COUCHJS_HTTP_ENABLED, COUCHJS_HTTP_BASE_URL, COUCHJS_HTTP_URI_FILE
//   - COUCHJS_HTTP_TIMEOUT_MS, COUCHJS_HTTP_RETRIES, COUCHJS_HTTP_RETRY_WAIT_MS
//   - COUCHJS_HTTP_RATE_LIMIT, COUCHJS_HTTP_USER_AGENT
//   - COUCHJS_TEST_FUNCS, COUCHJS_LOG_LEVEL, COUCHJS_LOG_DEV, COUCHJS_METRICS_FILE
package config
