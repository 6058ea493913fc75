/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scan

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/carverauto/devicepulse/pkg/logger"
	"github.com/carverauto/devicepulse/pkg/models"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
	maxPacketSize    = 1500
)

var echoPayload = []byte("devicepulse")

// icmpFamily holds the per address family socket parameters.
type icmpFamily struct {
	rawNetwork   string
	dgramNetwork string
	listenAddr   string
	protocol     int
	request      icmp.Type
	reply        icmp.Type
}

var (
	familyIPv4 = icmpFamily{
		rawNetwork:   "ip4:icmp",
		dgramNetwork: "udp4",
		listenAddr:   "0.0.0.0",
		protocol:     protocolICMP,
		request:      ipv4.ICMPTypeEcho,
		reply:        ipv4.ICMPTypeEchoReply,
	}
	familyIPv6 = icmpFamily{
		rawNetwork:   "ip6:ipv6-icmp",
		dgramNetwork: "udp6",
		listenAddr:   "::",
		protocol:     protocolIPv6ICMP,
		request:      ipv6.ICMPTypeEchoRequest,
		reply:        ipv6.ICMPTypeEchoReply,
	}
)

func familyFor(ip net.IP) icmpFamily {
	if ip.To4() != nil {
		return familyIPv4
	}

	return familyIPv6
}

func (f icmpFamily) network(privileged bool) string {
	if privileged {
		return f.rawNetwork
	}

	return f.dgramNetwork
}

func (icmpFamily) destination(ip net.IP, privileged bool) net.Addr {
	if privileged {
		return &net.IPAddr{IP: ip}
	}

	return &net.UDPAddr{IP: ip}
}

// ICMPProber sends a single ICMP echo request per probe. Unprivileged mode
// uses datagram ICMP sockets; privileged mode needs CAP_NET_RAW.
type ICMPProber struct {
	privileged bool
	id         int
	seq        atomic.Uint32
	resolver   *net.Resolver
	logger     logger.Logger
}

// NewICMPProber creates an ICMP echo prober.
func NewICMPProber(privileged bool, log logger.Logger) *ICMPProber {
	return &ICMPProber{
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
		resolver:   net.DefaultResolver,
		logger:     log,
	}
}

// Probe implements Prober.
func (p *ICMPProber) Probe(ctx context.Context, address string, timeout time.Duration) models.ProbeOutcome {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip, err := resolveIP(probeCtx, p.resolver, address)
	if err != nil {
		return Unreachable(address, probeError(probeCtx, err))
	}

	latency, err := p.echo(probeCtx, ip)
	if err != nil {
		p.logger.Debug().Str("address", address).Err(err).Msg("ICMP probe failed")

		return Unreachable(address, probeError(probeCtx, err))
	}

	return Reachable(address, latency)
}

func (p *ICMPProber) echo(ctx context.Context, ip net.IP) (time.Duration, error) {
	family := familyFor(ip)

	conn, err := icmp.ListenPacket(family.network(p.privileged), family.listenAddr)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrICMPListen, err)
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("failed to close ICMP socket")
		}
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, err
		}
	}

	// unblock the read if the parent is cancelled before the deadline
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)

	msg := icmp.Message{
		Type: family.request,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: echoPayload},
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshal echo request: %w", err)
	}

	start := time.Now()

	if _, err := conn.WriteTo(wb, family.destination(ip, p.privileged)); err != nil {
		return 0, fmt.Errorf("send echo request: %w", err)
	}

	rb := make([]byte, maxPacketSize)

	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNoEchoReply, err)
		}

		// the kernel rewrites the identifier on datagram sockets
		if matchEchoReply(family, rb[:n], peer, ip, p.id, seq, p.privileged) {
			return time.Since(start), nil
		}
	}
}

// matchEchoReply reports whether b is the echo reply for the given request.
func matchEchoReply(family icmpFamily, b []byte, peer net.Addr, target net.IP, id, seq int, checkID bool) bool {
	rm, err := icmp.ParseMessage(family.protocol, b)
	if err != nil || rm.Type != family.reply {
		return false
	}

	echo, ok := rm.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}

	if checkID && echo.ID != id {
		return false
	}

	return peerIP(peer).Equal(target)
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

// resolveIP returns the literal IP or the first address the resolver finds.
func resolveIP(ctx context.Context, resolver *net.Resolver, address string) (net.IP, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}

	if ip := net.ParseIP(address); ip != nil {
		return ip, nil
	}

	addrs, err := resolver.LookupIPAddr(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolveFailed, err)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no addresses for %s", ErrResolveFailed, address)
	}

	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}

	return addrs[0].IP, nil
}
