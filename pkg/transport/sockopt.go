package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// reuseFlags holds SO_REUSEADDR and SO_REUSEPORT of a socket.
type reuseFlags struct {
	addr int
	port int
}

func control(c syscall.RawConn, fn func(fd int) error) error {
	var opErr error
	if err := c.Control(func(fd uintptr) { opErr = fn(int(fd)) }); err != nil {
		return err
	}
	return opErr
}

func getReuse(c syscall.RawConn) (reuseFlags, error) {
	var f reuseFlags
	err := control(c, func(fd int) error {
		var err error
		if f.addr, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR); err != nil {
			return fmt.Errorf("get SO_REUSEADDR: %w", err)
		}
		if f.port, err = unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT); err != nil {
			return fmt.Errorf("get SO_REUSEPORT: %w", err)
		}
		return nil
	})
	return f, err
}

func setReuse(c syscall.RawConn, f reuseFlags) error {
	return control(c, func(fd int) error {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, f.addr); err != nil {
			return fmt.Errorf("set SO_REUSEADDR: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, f.port); err != nil {
			return fmt.Errorf("set SO_REUSEPORT: %w", err)
		}
		return nil
	})
}

// listenUDP binds a socket, optionally with both reuse flags set before
// bind.
func listenUDP(network string, addr *net.UDPAddr, reuse bool) (*net.UDPConn, error) {
	var lc net.ListenConfig
	if reuse {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			return setReuse(c, reuseFlags{addr: 1, port: 1})
		}
	}
	pc, err := lc.ListenPacket(context.Background(), network, addr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// rebind replaces conn with a fresh unconnected socket bound to the same
// address, without releasing the port in between.
func rebind(network string, conn *net.UDPConn) (*net.UDPConn, error) {
	local := conn.LocalAddr().(*net.UDPAddr)
	rc, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	saved, err := getReuse(rc)
	if err != nil {
		// Already closed underneath us: the port is free again.
		conn.Close()
		return listenUDP(network, local, false)
	}
	if err := setReuse(rc, reuseFlags{addr: 1, port: 1}); err != nil {
		return nil, err
	}

	fresh, err := listenUDP(network, local, true)
	if err != nil {
		_ = setReuse(rc, saved)
		return nil, fmt.Errorf("re-bind %s: %w", local, err)
	}
	conn.Close()

	frc, err := fresh.SyscallConn()
	if err == nil {
		err = setReuse(frc, saved)
	}
	if err != nil {
		fresh.Close()
		return nil, err
	}
	return fresh, nil
}

func isIPv4Socket(conn *net.UDPConn) bool {
	return conn.LocalAddr().(*net.UDPAddr).IP.To4() != nil
}

func toSockaddr(conn *net.UDPConn, addr *net.UDPAddr) (unix.Sockaddr, error) {
	if isIPv4Socket(conn) {
		ip4 := addr.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("cannot reach %s from an IPv4 socket", addr)
		}
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		ifi, err := net.InterfaceByName(addr.Zone)
		if err != nil {
			return nil, err
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

func fromSockaddr(sa unix.Sockaddr) *net.UDPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]), Port: sa.Port}
	case *unix.SockaddrInet6:
		addr := &net.UDPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}
		return addr
	}
	return nil
}

// connectSocket connects the kernel socket behind conn. Datagrams already
// queued stay queued.
func connectSocket(conn *net.UDPConn, addr *net.UDPAddr) error {
	sa, err := toSockaddr(conn, addr)
	if err != nil {
		return err
	}
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return control(rc, func(fd int) error {
		if err := unix.Connect(fd, sa); err != nil {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		return nil
	})
}

// peekSender waits for a datagram and returns its source address without
// consuming it.
func peekSender(conn *net.UDPConn, timeout time.Duration) (*net.UDPAddr, error) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	var from unix.Sockaddr
	var opErr error
	buf := make([]byte, 1)
	err = rc.Read(func(fd uintptr) bool {
		_, from, opErr = unix.Recvfrom(int(fd), buf, unix.MSG_PEEK)
		return !errors.Is(opErr, unix.EAGAIN)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return nil, mapIOError(err)
	}
	addr := fromSockaddr(from)
	if addr == nil {
		return nil, fmt.Errorf("peek: unsupported source address %T", from)
	}
	return addr, nil
}

// unusedAddr returns a loopback address whose port nobody listens on.
func unusedAddr(conn *net.UDPConn) (*net.UDPAddr, error) {
	network, ip := "udp6", net.IPv6loopback
	if isIPv4Socket(conn) {
		network, ip = "udp4", net.IPv4(127, 0, 0, 1)
	}
	probe, err := net.ListenUDP(network, &net.UDPAddr{IP: ip})
	if err != nil {
		return nil, err
	}
	addr := probe.LocalAddr().(*net.UDPAddr)
	probe.Close()
	return addr, nil
}

func mapIOError(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, unix.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrPortUnreachable, err)
	case errors.Is(err, net.ErrClosed):
		return ErrClosed
	}
	return err
}
