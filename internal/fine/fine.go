// Package fine implements a transport-neutral subset of FUSE. FINE stands for
// "FIlesystem over NEtwork."
//
// Requests are read from a Transport, handled by a server.Handler, and
// responses are written back to the same Transport. The kernel transport
// lives in the fuse subpackage.
//
// fine only models the operations a networkfs mount needs: node lookup and
// lifetime, attributes, file and directory creation and removal, hard links,
// file I/O and directory listing.
package fine

// Request is used for protocol request messages which are sent by a kernel to
// the filesystem driver.
type Request interface {
	fineRequest()
}

// Response is used for protocol response message types which are sent from the
// filesystem driver after processing a request.
type Response interface {
	fineResponse()
}

// Transports are used to transmit FINE protocol messages. See subpackages for
// available transports.
type Transport interface {
	// RecvRequest will get the next request from the other side of the
	// connection. There will always be a request header, but some operations may
	// have empty (nil) requests. RecvRequest returns io.EOF once the connection
	// has been shut down by the peer.
	RecvRequest() (RequestHeader, Request, error)

	// SendResponse sends r to the other side of the connection. There must
	// always be a response header, but some operations do not have responses.
	SendResponse(h ResponseHeader, r Response) error

	// Close the connection.
	Close() error
}
