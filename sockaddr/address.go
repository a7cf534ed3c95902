/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package sockaddr holds a family-tagged endpoint address (spec §3, C1):
// IPv4, IPv6 or UNIX-domain path, with readers that must agree with the tag
// a value was built with.
package sockaddr

import (
	"fmt"
	"net"
	"strconv"

	libptc "github.com/sabouaram/pwnet/network/protocol"
	"github.com/sabouaram/pwnet/pkgerr"
)

// Family is the address family tag.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyInet4
	FamilyInet6
	FamilyUnix
)

func (f Family) String() string {
	switch f {
	case FamilyInet4:
		return "inet4"
	case FamilyInet6:
		return "inet6"
	case FamilyUnix:
		return "unix"
	default:
		return "none"
	}
}

// Address is a stack-owned, freely copyable tagged union over IPv4, IPv6, or
// a UNIX-domain filesystem path.
type Address struct {
	family Family
	ip     net.IP
	port   int
	path   string
}

// ErrWrongFamily is returned by an accessor asked for a family the Address
// does not hold; it never returns undefined bytes.
var ErrWrongFamily = pkgerr.New(pkgerr.MinPkgSockAddr, "address accessed with wrong family")

// NewInet4 builds an IPv4 Address. ip must be a 4-byte (or 4-in-16) IP.
func NewInet4(ip net.IP, port int) (Address, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Address{}, pkgerr.New(pkgerr.MinPkgSockAddr, "not an IPv4 address")
	}
	return Address{family: FamilyInet4, ip: v4, port: port}, nil
}

// NewInet6 builds an IPv6 Address.
func NewInet6(ip net.IP, port int) (Address, error) {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return Address{}, pkgerr.New(pkgerr.MinPkgSockAddr, "not an IPv6 address")
	}
	return Address{family: FamilyInet6, ip: v6, port: port}, nil
}

// NewUnix builds a UNIX-domain Address from a filesystem path.
func NewUnix(path string) Address {
	return Address{family: FamilyUnix, path: path}
}

// Family reports the tag; readers must check it before calling a family accessor.
func (a Address) Family() Family {
	return a.family
}

// Inet4 returns the IPv4 tuple, or ErrWrongFamily if this Address is not IPv4.
func (a Address) Inet4() (net.IP, int, error) {
	if a.family != FamilyInet4 {
		return nil, 0, ErrWrongFamily
	}
	return a.ip, a.port, nil
}

// Inet6 returns the IPv6 tuple, or ErrWrongFamily if this Address is not IPv6.
func (a Address) Inet6() (net.IP, int, error) {
	if a.family != FamilyInet6 {
		return nil, 0, ErrWrongFamily
	}
	return a.ip, a.port, nil
}

// Path returns the UNIX-domain path, or ErrWrongFamily if this Address is not UNIX.
func (a Address) Path() (string, error) {
	if a.family != FamilyUnix {
		return "", ErrWrongFamily
	}
	return a.path, nil
}

// String renders host:port for INET families, or the raw path for UNIX.
func (a Address) String() string {
	switch a.family {
	case FamilyInet4, FamilyInet6:
		return net.JoinHostPort(a.ip.String(), strconv.Itoa(a.port))
	case FamilyUnix:
		return a.path
	default:
		return ""
	}
}

// NetAddr renders the stdlib net.Addr this Address would dial/listen as for
// the given protocol; protocol must agree with the Address's family.
func (a Address) NetAddr(proto libptc.NetworkProtocol) (net.Addr, error) {
	switch a.family {
	case FamilyInet4, FamilyInet6:
		if proto.IsUnix() {
			return nil, ErrWrongFamily
		}
		switch proto {
		case libptc.NetworkUDP, libptc.NetworkUDP4, libptc.NetworkUDP6:
			return &net.UDPAddr{IP: a.ip, Port: a.port}, nil
		default:
			return &net.TCPAddr{IP: a.ip, Port: a.port}, nil
		}
	case FamilyUnix:
		if !proto.IsUnix() {
			return nil, ErrWrongFamily
		}
		return &net.UnixAddr{Name: a.path, Net: proto.String()}, nil
	default:
		return nil, ErrWrongFamily
	}
}

// Resolve resolves a "host:service" string (or a bare path for unix/unixgram)
// to a list of concrete Addresses, the way getaddrinfo fans one name out to
// several candidate endpoints.
func Resolve(proto libptc.NetworkProtocol, hostService string) ([]Address, error) {
	if proto.IsUnix() {
		return []Address{NewUnix(hostService)}, nil
	}

	host, service, err := net.SplitHostPort(hostService)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgSockAddr, fmt.Sprintf("invalid host:service %q", hostService), err)
	}

	port, err := net.LookupPort(proto.String(), service)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgSockAddr, fmt.Sprintf("invalid service %q", service), err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.MinPkgSockAddr, fmt.Sprintf("cannot resolve host %q", host), err)
	}

	out := make([]Address, 0, len(ips))
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			out = append(out, Address{family: FamilyInet4, ip: v4, port: port})
		} else {
			out = append(out, Address{family: FamilyInet6, ip: ip.To16(), port: port})
		}
	}

	if len(out) == 0 {
		return nil, pkgerr.New(pkgerr.MinPkgSockAddr, fmt.Sprintf("host %q resolved to no addresses", host))
	}

	return out, nil
}
