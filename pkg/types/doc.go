// Package types defines the wire types shared by the relay server and the
// console client. Every websocket text frame carries exactly one Envelope.
package types
