// Package netutil picks the TCP address the control-plane HTTP server
// binds to, so a second clipengine instance started against the same
// CDP target doesn't simply fail to start when the usual port is held
// by the first one.
package netutil

import (
	"errors"
	"fmt"
	"net"
)

// SelectBindAddr picks the control-plane listen address: preferred if
// free, otherwise the first free address in fallbacks when autoFallback
// is set. A preferred address in use with autoFallback off is an error
// rather than a silent fallback, so CLIPENGINE_BIND_ADDR misconfiguration
// surfaces at startup instead of binding somewhere the caller didn't ask
// for.
func SelectBindAddr(preferred string, fallbacks []string, autoFallback bool) (string, error) {
	if preferred != "" {
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred control-plane bind address in use: %s", preferred)
		}
	}

	for _, addr := range fallbacks {
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", errors.New("no available control-plane bind addresses")
}

// IsAddrAvailable reports whether addr can be listened on right now.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
