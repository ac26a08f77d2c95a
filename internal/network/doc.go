// Package network turns a bidirectional byte stream into a line-oriented text
// channel. Every Connection owns one receive goroutine and reports its
// lifecycle to an Observer; Send and Disconnect are safe for concurrent use.
package network
