package stun

// Consider using github.com/tailscale/tailscale/net/stun instead!
import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/pion/stun/v3"
	"golang.org/x/sys/unix"
)

var stunNetworkMap = map[int]string{
	unix.AF_INET:  "udp4",
	unix.AF_INET6: "udp6",
}

// GetPubIPOverSTUN asks the configured STUN servers what address our
// traffic shows up with. The request is bound to localAddr so that the
// answer maps that address and not whatever one the OS would pick.
func GetPubIPOverSTUN(c Config, family int, localAddr netip.Addr) (netip.Addr, error) {
	network, ok := stunNetworkMap[family]
	if !ok {
		return netip.Addr{}, fmt.Errorf("wrong family specified")
	}

	for _, server := range c.StunServers {
		slog.Debug("trying to get public IP over STUN", "server", server)

		pIP, err := doSTUNRequest(network, server, localAddr)
		if err != nil {
			slog.Warn("error getting the public IP over STUN", "server", server, "err", err)
			continue
		}

		return pIP, nil
	}

	return netip.Addr{}, fmt.Errorf("couldn't get public IP address and we exhausted STUN servers")
}

func doSTUNRequest(network, server string, localAddr netip.Addr) (netip.Addr, error) {
	raddr, err := net.ResolveUDPAddr(network, server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("couldn't resolve the STUN server address: %w", err)
	}

	conn, err := net.DialUDP(network, &net.UDPAddr{IP: localAddr.AsSlice()}, raddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("couldn't dial the STUN server: %w", err)
	}

	c, err := stun.NewClient(conn)
	if err != nil {
		conn.Close()
		return netip.Addr{}, fmt.Errorf("error creating the client: %w", err)
	}
	defer c.Close()

	// Building binding request with random transaction id.
	message, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error building the binding request: %w", err)
	}

	var (
		parsedIP   netip.Addr
		closureErr error
	)
	// Sending request to STUN server, waiting for response message.
	if err := c.Do(message, func(res stun.Event) {
		if res.Error != nil {
			closureErr = res.Error
			return
		}

		// Decoding XOR-MAPPED-ADDRESS attribute from message.
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res.Message); err != nil {
			closureErr = err
			return
		}

		ip, ok := netip.AddrFromSlice(xorAddr.IP)
		if !ok {
			closureErr = fmt.Errorf("couldn't parse the mapped address %v", xorAddr.IP)
			return
		}
		parsedIP = ip.Unmap()
	}); err != nil {
		return netip.Addr{}, fmt.Errorf("error making the request: %w", err)
	}
	if closureErr != nil {
		return netip.Addr{}, fmt.Errorf("error in the STUN exchange: %w", closureErr)
	}

	return parsedIP, nil
}
