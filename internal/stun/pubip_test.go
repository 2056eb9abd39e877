package stun

import (
	"testing"

	"github.com/flowtap/flowtap/types"
)

func TestGetPublicAddresses(t *testing.T) {
	if testing.Short() {
		t.Skip("resolution dials external services")
	}

	pubIPs, err := GetPublicAddresses(stunConf)
	if err != nil {
		t.Fatalf("error getting the public IPs: %v", err)
	}

	for priv, pub := range pubIPs {
		if types.IsIPPrivate(pub) {
			t.Errorf("%s resolved to %s, which isn't public", priv, pub)
		}
	}
	t.Logf("pubIPs: %+v", pubIPs)
}
