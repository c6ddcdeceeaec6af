package sender

import (
	"fmt"
	"net"
	"strconv"

	"github.com/toolza/gobyte/certs"
	"github.com/toolza/gobyte/plan"
)

// targetAddr appends opts.Port to target unless target already names a
// port.
func targetAddr(target string, port uint16) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return fmt.Sprintf("%s:%s", target, strconv.Itoa(int(port)))
}

// certDir resolves where the QUIC driver caches its self-signed
// certificate for this invocation.
func certDir(plan.Options) string {
	return certs.DefaultDir()
}
