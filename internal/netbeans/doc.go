// Package netbeans implements the server side of the netbeans protocol used
// by Vim to talk to an external editor process: the AUTH handshake, events,
// commands, and functions whose replies are matched to their requests.
package netbeans
