/*
Package couchhttp defines the CouchHTTP class available to scripts when
HTTP support is enabled.

Each instance owns one transport connection, opened by the constructor and
closed only by the finalizer the engine runs once the instance is
unreachable (or when the root context closes). Requests are always sent
synchronously:

	var req = new CouchHTTP();
	req.open("GET", "/db/_all_docs");
	req.send();
	print(req.status, req.responseText);

The native methods are _open, _setRequestHeader and _send, with read-only
status and base_url properties. A small prelude adds open, setRequestHeader,
send and getResponseHeader on top of them.
*/
package couchhttp
