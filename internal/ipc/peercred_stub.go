//go:build !linux

package ipc

import (
	"errors"
	"net"
)

type peerCred struct {
	PID int
	UID int
	GID int
}

func peerCredentials(conn net.Conn) (*peerCred, error) {
	return nil, errors.New("peer credentials unsupported on this platform")
}
