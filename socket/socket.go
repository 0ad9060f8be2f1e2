/*
Copyright (c) CSPTP Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package socket wraps the raw UDP socket syscalls the client and service
// engines use to exchange CSPTP messages: bind, send, a readiness poll with
// timeout, and receive with a software RX timestamp. It captures the RX
// timestamp immediately after the read returns rather than reconstructing
// the kernel's SO_TIMESTAMPING delivery time from a control message; see
// the design notes for why that's the right tradeoff for a unicast client
// or service that isn't disciplining a hardware clock.
package socket

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/ptptime"
)

// Socket is a bound, blocking UDP socket used to exchange CSPTP messages.
type Socket struct {
	fd     int
	domain int
}

// Bind creates and binds a UDP socket to local. Pass the zero Address's
// family via local's family to pick AF_INET vs AF_INET6.
func Bind(local address.Address) (*Socket, error) {
	domain := unix.AF_INET
	if local.Family() == address.FamilyUDPv6 {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket: creating socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socket: setting SO_REUSEPORT: %w", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socket: setting blocking mode: %w", err)
	}
	if err := unix.Bind(fd, sockaddr(local)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socket: binding to %s: %w", local, err)
	}
	return &Socket{fd: fd, domain: domain}, nil
}

// Close releases the underlying file descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// LocalPort returns the port the socket is bound to, useful after binding
// to port 0 to let the kernel pick one.
func (s *Socket) LocalPort() (uint16, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, fmt.Errorf("socket: getting local address: %w", err)
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(v.Port), nil
	case *unix.SockaddrInet6:
		return uint16(v.Port), nil
	default:
		return 0, fmt.Errorf("socket: unrecognized sockaddr type %T", sa)
	}
}

// Send writes b to the peer named by addr.
func (s *Socket) Send(b []byte, addr address.Address) error {
	if err := unix.Sendto(s.fd, b, 0, sockaddr(addr)); err != nil {
		return fmt.Errorf("socket: sending to %s: %w", addr, err)
	}
	return nil
}

// Poll blocks until the socket is readable or timeout elapses, reporting
// which. A zero timeout polls without blocking; a negative timeout blocks
// indefinitely.
func (s *Socket) Poll(timeout time.Duration) (ready bool, err error) {
	millis := -1
	if timeout >= 0 {
		millis = int(timeout.Milliseconds())
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, millis)
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("socket: polling: %w", err)
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

// Received is a single datagram read from the socket along with its sender
// and the software timestamp captured immediately after the read.
type Received struct {
	N      int
	From   address.Address
	RxTime ptptime.Timestamp
}

// Recv reads one datagram into buf, reporting the sender and an RX timestamp.
func (s *Socket) Recv(buf []byte) (Received, error) {
	n, saddr, err := unix.Recvfrom(s.fd, buf, 0)
	rxTime := ptptime.FromTime(time.Now())
	if err != nil {
		return Received{}, fmt.Errorf("socket: receiving: %w", err)
	}
	from, err := sockaddrToAddr(saddr)
	if err != nil {
		return Received{}, fmt.Errorf("socket: decoding sender address: %w", err)
	}
	return Received{N: n, From: from, RxTime: rxTime}, nil
}

func sockaddr(a address.Address) unix.Sockaddr {
	if a.Family() == address.FamilyUDPv6 {
		var sa unix.SockaddrInet6
		sa.Port = int(a.Port())
		sa.Addr = a.IP().As16()
		return &sa
	}
	var sa unix.SockaddrInet4
	sa.Port = int(a.Port())
	sa.Addr = a.IP().As4()
	return &sa
}

func sockaddrToAddr(sa unix.Sockaddr) (address.Address, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return address.NewUDPv4(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return address.NewUDPv6(netip.AddrFrom16(v.Addr), uint16(v.Port))
	default:
		return address.Address{}, fmt.Errorf("socket: unrecognized sockaddr type %T", sa)
	}
}
