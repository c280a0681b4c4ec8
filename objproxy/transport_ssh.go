package objproxy

import (
	"golang.org/x/crypto/ssh"
)

// sshChannelConn adapts an ssh.Channel (which already implements
// io.ReadWriter) into the io.ReadWriteCloser a Host needs, and ignores
// ssh.Channel's extended-data stream since this protocol has no use for it.
type sshChannelConn struct {
	ssh.Channel
}

// NewHostOverSSHChannel wraps an already-opened SSH channel as a Host, so a
// channel multiplexed over one SSH connection carries one proxy session's
// frames instead of a tunnelled TCP stream.
func NewHostOverSSHChannel(ch ssh.Channel, locator ServiceLocator, opts ...HostOption) *Host {
	return NewHost(sshChannelConn{ch}, locator, opts...)
}
