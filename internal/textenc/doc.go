// Package textenc turns script files and HTTP response bodies into the
// UTF-8 strings the JavaScript engine expects.
package textenc
