package api

import (
	"net"
	"syscall"
)

// listenConfig sets SO_REUSEADDR before binding so a restarted process can
// take the API port back while the old socket sits in TIME_WAIT.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			if err := c.Control(func(fd uintptr) {
				opErr = setReuseAddr(fd)
			}); err != nil {
				return err
			}
			return opErr
		},
	}
}
