/*
Package transport performs the HTTP round trips behind CouchHTTP.

The engine only sees the Transport and Conn interfaces. Client is the
production implementation: resty on a pooled retryablehttp transport, a
cookie jar per connection, a shared rate limiter and a circuit breaker that
fails fast when the database stops answering.

Response bodies are always handed back as UTF-8 text. Gzip and zstd bodies
are decoded when the script negotiated the encoding itself.
*/
package transport
