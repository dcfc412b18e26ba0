/*
Package engine hosts the JavaScript runtime that executes couchjs scripts.

# Overview

The engine is a process-wide singleton created by Initialize and torn down
by Shutdown. It owns exactly one root Context, whose Namespace holds the
globals shared by every script of a run. All script code runs on the
calling goroutine.

# Isolation

Each Namespace is backed by its own goja runtime. evalcx runs code in a
separate namespace through a short-lived sub-context and copies the result
back, so nothing defined in a sandbox is reachable from the root except the
copied completion value:

	root := e.Root()
	v, err := root.Evalcx("var x = 1; x + 1", nil, "")

Passing a plain object as the sandbox binds a namespace to that object, so
globals survive between calls that reuse the same handle.

# Security Policy

Whether evalcx may run at all is decided once, by the Policy passed to
Initialize. A denied call fails before any sub-context or namespace is
created.

# Finalization

Native state attached to script objects (CouchHTTP connections, sandbox
namespaces) is registered with the Tracker, which holds only weak
references. Collect forces a garbage collection and finalizes everything
that became unreachable; closing the root context finalizes the rest.
Each finalizer runs exactly once, on the script goroutine.

# Builtins

InstallBuiltins defines print, quit, gc, readline, seal and evalcx, and
sleep when test support is enabled. quit interrupts the runtime, so it
cannot be caught by script; Run reports it as *ExitError.
*/
package engine
