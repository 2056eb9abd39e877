//go:build linux && ebpf

package packet

import (
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/cilium/ebpf"
	"github.com/florianl/go-tc"
	"github.com/florianl/go-tc/core"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

const (
	filterPriority uint32 = 1
	filterHandle   uint32 = 1

	// Direct-action mode for eBPF classifiers, from
	// include/uapi/linux/pkt_cls.h. See tc-bpf(8).
	tcaBpfFlagActDirect uint32 = 1 << 0
)

// NetlinkClient manages the clsact qdiscs and attached classifiers through
// rtnetlink. We target kernels predating tcx, so attachment goes through
// netlink the way libbpf does it: create a clsact qdisc, then add a bpf
// filter to its ingress or egress path. github.com/florianl/go-tc keeps us
// close enough to the raw messages without pulling libbpf in.
type NetlinkClient struct {
	conn *tc.Tc

	// Interfaces where a clsact qdisc has been created.
	qdiscs []string

	// Interfaces where a classifier has been attached.
	filters []string
}

// NewNetlinkClient opens a connection to the kernel's rtnetlink subsystem.
// The returned client must be closed to avoid leaking fds.
func NewNetlinkClient() (*NetlinkClient, error) {
	tcnl, err := tc.Open(&tc.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open rtnetlink socket: %w", err)
	}

	// Enhanced error messages from the kernel, supported since 4.12.
	if err := tcnl.SetOption(netlink.ExtendedAcknowledge, true); err != nil {
		slog.Warn("could not set option ExtendedAcknowledge", "err", err)
	}

	return &NetlinkClient{conn: tcnl}, nil
}

func (nl *NetlinkClient) Close(tearQdiscs bool) error {
	if tearQdiscs {
		for _, iface := range nl.qdiscs {
			if err := nl.RemoveFilterQdisc(iface); err != nil {
				slog.Warn("error removing qdisc", "interface", iface, "err", err)
			}
		}
	}

	return nl.conn.Close()
}

// craftQdiscDescription mirrors libbpf's RTM_NEWQDISC request for a clsact
// qdisc: handle TC_H_MAKE(TC_H_CLSACT, 0), parent TC_H_INGRESS.
func craftQdiscDescription(interfaceName string) (tc.Object, error) {
	devID, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return tc.Object{}, fmt.Errorf("could not get interface id: %w", err)
	}

	return tc.Object{
		Msg: tc.Msg{
			Family:  unix.AF_UNSPEC,
			Ifindex: uint32(devID.Index),
			Handle:  core.BuildHandle(tc.HandleRoot, 0x0000),
			Parent:  tc.HandleIngress,
			Info:    0,
		},
		Attribute: tc.Attribute{
			Kind: "clsact",
		},
	}, nil
}

func craftFilterDescription(interfaceName string, progFd *uint32, egress bool) (tc.Object, error) {
	devID, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return tc.Object{}, fmt.Errorf("could not get interface id: %w", err)
	}

	flags := tcaBpfFlagActDirect
	name := progName

	return tc.Object{
		Msg: tc.Msg{
			Family:  unix.AF_UNSPEC,
			Ifindex: uint32(devID.Index),
			Handle:  filterHandle,

			// Choose the qdisc path to attach the classifier to.
			Parent: core.BuildHandle(tc.HandleRoot, func() uint32 {
				if egress {
					return tc.HandleMinEgress
				}
				return tc.HandleMinIngress
			}()),

			// The priority lives in the upper 16 bits; the lower ones
			// carry the protocol (ETH_P_ALL) in network byte order.
			Info: core.BuildHandle(filterPriority, (unix.ETH_P_ALL&0xFF)<<8|(unix.ETH_P_ALL&0xFF00)>>8),
		},
		Attribute: tc.Attribute{
			Kind: "bpf",
			BPF: &tc.Bpf{
				FD:    progFd,
				Flags: &flags,
				Name:  &name,
			},
		},
	}, nil
}

func (nl *NetlinkClient) CreateFilterQdisc(interfaceName string) error {
	qdisc, err := craftQdiscDescription(interfaceName)
	if err != nil {
		return fmt.Errorf("error crafting the qdisc description: %w", err)
	}

	if err := nl.conn.Qdisc().Add(&qdisc); err != nil {
		return fmt.Errorf("could not assign clsact to qdisc %q: %w", interfaceName, err)
	}

	if slices.Index(nl.qdiscs, interfaceName) == -1 {
		nl.qdiscs = append(nl.qdiscs, interfaceName)
	}

	return nil
}

func (nl *NetlinkClient) RemoveFilterQdisc(interfaceName string) error {
	qdisc, err := craftQdiscDescription(interfaceName)
	if err != nil {
		return fmt.Errorf("error crafting the qdisc description: %w", err)
	}

	// Deleting the qdisc takes the attached classifier with it.
	if err := nl.conn.Qdisc().Delete(&qdisc); err != nil {
		return err
	}

	if i := slices.Index(nl.qdiscs, interfaceName); i >= 0 {
		nl.qdiscs[i] = nl.qdiscs[len(nl.qdiscs)-1]
		nl.qdiscs = nl.qdiscs[:len(nl.qdiscs)-1]
	}

	return nil
}

func (nl *NetlinkClient) AttachClassifier(interfaceName string, prog *ebpf.Program, egress bool) error {
	fd := uint32(prog.FD())
	filterDescr, err := craftFilterDescription(interfaceName, &fd, egress)
	if err != nil {
		return fmt.Errorf("error crafting filter description: %w", err)
	}

	if err := nl.conn.Filter().Add(&filterDescr); err != nil {
		return fmt.Errorf("could not attach the classifier: %w", err)
	}

	if slices.Index(nl.filters, interfaceName) == -1 {
		nl.filters = append(nl.filters, interfaceName)
	}

	return nil
}
