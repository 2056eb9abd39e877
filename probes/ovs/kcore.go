//go:build linux && ebpf

package ovs

import (
	"debug/elf"
	"fmt"
	"os"
)

// Kcore reads live kernel memory through /proc/kcore, the ELF core image
// the kernel exposes of itself. Virtual addresses are translated through
// the image's load segments.
type Kcore struct {
	f    *os.File
	segs []kcoreSegment
}

type kcoreSegment struct {
	vaddr uint64
	size  uint64
	off   uint64
}

func OpenKcore() (*Kcore, error) {
	f, err := os.Open("/proc/kcore")
	if err != nil {
		return nil, fmt.Errorf("couldn't open /proc/kcore: %w", err)
	}

	img, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("couldn't parse /proc/kcore: %w", err)
	}

	k := &Kcore{f: f}
	for _, p := range img.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		k.segs = append(k.segs, kcoreSegment{vaddr: p.Vaddr, size: p.Memsz, off: p.Off})
	}

	if len(k.segs) == 0 {
		f.Close()
		return nil, fmt.Errorf("/proc/kcore exposes no loadable segments")
	}

	return k, nil
}

// ReadAt implements MemReader. A read outside every load segment fails,
// which is how dereferencing a bogus kernel pointer surfaces.
func (k *Kcore) ReadAt(addr uint64, buf []byte) error {
	for _, s := range k.segs {
		if addr < s.vaddr || addr+uint64(len(buf)) > s.vaddr+s.size {
			continue
		}
		if _, err := k.f.ReadAt(buf, int64(s.off+(addr-s.vaddr))); err != nil {
			return fmt.Errorf("couldn't read %d bytes at %#x: %w", len(buf), addr, err)
		}
		return nil
	}
	return fmt.Errorf("address %#x is not mapped", addr)
}

func (k *Kcore) Close() error {
	return k.f.Close()
}
