package stun

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

var httpNetworkMap = map[int]string{
	unix.AF_INET:  "tcp4",
	unix.AF_INET6: "tcp6",
}

// HTTP discovery services and the JSON key their answer carries the
// public address under. ip-api.com is left out: it only answers over
// IPv4.
var httpServices = []struct {
	url string
	key string
}{
	{"https://api64.ipify.org?format=json", "ip"},
	{"https://ipconfig.io/json", "ip"},
}

// GetPubIPOverHTTP resolves the public address localAddr is seen as by
// asking HTTP discovery services, trying each until one answers. The
// request is pinned to localAddr and to the given family so the answer
// actually describes that address and not whatever the OS would have
// preferred to dial with.
func GetPubIPOverHTTP(c Config, family int, localAddr netip.Addr) (netip.Addr, error) {
	network, ok := httpNetworkMap[family]
	if !ok {
		return netip.Addr{}, fmt.Errorf("unknown address family %d", family)
	}

	dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: localAddr.AsSlice(), Zone: localAddr.Zone()}}
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
		Timeout: 10 * time.Second,
	}

	for _, service := range httpServices {
		slog.Debug("resolving the public IP over HTTP", "url", service.url)

		pub, err := fetchPubIP(client, service.url, service.key)
		if err != nil {
			slog.Warn("the discovery service didn't answer", "url", service.url, "err", err)
			continue
		}

		return pub, nil
	}

	return netip.Addr{}, fmt.Errorf("exhausted every HTTP discovery service")
}

func fetchPubIP(client *http.Client, url, key string) (netip.Addr, error) {
	resp, err := client.Get(url)
	if err != nil {
		return netip.Addr{}, err
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return netip.Addr{}, fmt.Errorf("error decoding the answer: %w", err)
	}

	raw, ok := payload[key].(string)
	if !ok {
		return netip.Addr{}, fmt.Errorf("the answer carries no %q key", key)
	}

	pub, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("couldn't parse the returned address %q: %w", raw, err)
	}

	return pub.Unmap(), nil
}
