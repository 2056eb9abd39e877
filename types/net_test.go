package types

import (
	"net/netip"
	"testing"
)

func TestIsIPPrivate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.1.1", true},
		{"100.64.0.1", true},  // CGNAT
		{"198.18.0.1", true},  // benchmarking
		{"203.0.113.9", true}, // TEST-NET-3
		{"224.0.0.1", true},   // multicast
		{"0.0.0.0", true},
		{"9.9.9.9", false},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},     // unique-local
		{"2001:db8::1", true}, // documentation
		{"2002::1", true},     // 6to4
		{"2001:4860:4860::8844", false},
		{"::ffff:192.168.0.1", true}, // v4-mapped private
		{"::ffff:9.9.9.9", false},    // v4-mapped public
	}

	for _, test := range tests {
		ip, err := netip.ParseAddr(test.in)
		if err != nil {
			t.Errorf("error parsing addr %q", test.in)
			continue
		}
		if got := IsIPPrivate(ip); got != test.want {
			t.Errorf("IsIPPrivate(%q) = %v; want %v", test.in, got, test.want)
		}
	}
}

func TestIsIPLinkLocal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"fe80::1", true},
		{"ff02::1", true},
		{"169.254.1.1", true},
		{"fd00::1", false},
		{"192.168.1.1", false},
	}

	for _, test := range tests {
		ip, err := netip.ParseAddr(test.in)
		if err != nil {
			t.Errorf("error parsing addr %q", test.in)
			continue
		}
		if got := IsIPLinkLocal(ip); got != test.want {
			t.Errorf("IsIPLinkLocal(%q) = %v; want %v", test.in, got, test.want)
		}
	}
}
