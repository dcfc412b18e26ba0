// Package runner drives a couchjs run: it expands the script arguments,
// loads each file as UTF-8 text and executes it in the root context, in
// order, so that later scripts see the globals defined by earlier ones.
package runner
