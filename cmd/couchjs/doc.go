// Couchjs runs CouchDB view and validation JavaScript.
//
// Usage:
//
//	couchjs [flags] script...
//
// Scripts run in order in one global namespace. Arguments containing glob
// characters are expanded, so "design/**/*.js" runs every matching file in
// lexical order.
//
// The flags are:
//
//	-S, --stack-size int    root stack budget in bytes
//	-E, --eval              permit sandboxed evaluation with evalcx
//	-H, --http              install the CouchHTTP class
//	-T, --test-suite        install test-suite functions (sleep)
//	-u, --uri-file path     file whose first line is the CouchHTTP base URL
//	    --base-url url      CouchHTTP base URL
//	    --config path       YAML or TOML configuration file
//	    --log-level level   debug, info, warn or error
//	    --dev               human-readable logging
//	    --metrics-file path write Prometheus metrics at exit
//
// Every setting can also come from a COUCHJS_* environment variable. Flags
// set on the command line win over the config file, which wins over the
// environment.
//
// Exit status is 0 on success, 1 when a script cannot be read, compiled or
// run, 2 when CouchHTTP cannot be installed, and n after quit(n).
package main
