// Package engine validates the target platform a patch run is being
// asked to produce output for. The emission core only ever speaks
// ELF64 little-endian x86-64, so this package's job has shrunk to
// rejecting anything else early, with a clear message, rather than
// letting the Validator discover the mismatch deep inside a
// byte-level parse.
package engine

import (
	"fmt"
	"strings"
)

// Arch identifies a CPU architecture a --target flag can name.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
)

func (a Arch) String() string {
	if a == ArchX86_64 {
		return "x86_64"
	}
	return "unknown"
}

// ParseArch parses an architecture string (GOARCH-style spellings
// accepted for convenience). Only x86_64 is supported; everything
// else is reported the way the Validator reports an unsupported
// e_machine.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported architecture %q: this build only emits x86_64 trampolines", s)
	}
}

// OS identifies the target operating system's ELF conventions.
type OS int

const (
	OSUnknown OS = iota
	OSLinux
)

func (o OS) String() string {
	if o == OSLinux {
		return "linux"
	}
	return "unknown"
}

// ParseOS parses an OS string. Only linux is supported: the loader
// shim's mmap/mprotect syscall numbers and the PT_GNU_* segment types
// this package repurposes are Linux-specific.
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux, nil
	default:
		return OSUnknown, fmt.Errorf("unsupported OS %q: this build only targets linux", s)
	}
}

// Platform is a parsed --target value.
type Platform struct {
	Arch Arch
	OS   OS
}

// ParsePlatform parses a "arch-os" target string, e.g. "x86_64-linux".
func ParsePlatform(s string) (Platform, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Platform{}, fmt.Errorf("malformed target %q, expected arch-os (e.g. x86_64-linux)", s)
	}
	arch, err := ParseArch(parts[0])
	if err != nil {
		return Platform{}, err
	}
	os, err := ParseOS(parts[1])
	if err != nil {
		return Platform{}, err
	}
	return Platform{Arch: arch, OS: os}, nil
}

func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}
