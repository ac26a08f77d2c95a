// Package manager implements the chat relay's management channel: a second
// TCP listener whose sessions send one text command per line and receive one
// response line per command.
package manager
