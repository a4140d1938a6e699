package arch

import (
	"strings"

	"github.com/punktos/vmm/memutils"
)

// MMUFlags are the architecture-neutral mapping attributes of a page table entry
type MMUFlags uint32

const (
	MMUFlagCached         MMUFlags = 0
	MMUFlagUncached       MMUFlags = 1 << 0
	MMUFlagUncachedDevice MMUFlags = 1 << 1
	MMUFlagWriteCombining MMUFlags = MMUFlagUncached | MMUFlagUncachedDevice
	// MMUFlagCacheMask selects the cache policy bits, which form an enumeration rather than flags
	MMUFlagCacheMask MMUFlags = 3

	MMUFlagPermUser      MMUFlags = 1 << 2
	MMUFlagPermReadOnly  MMUFlags = 1 << 3
	MMUFlagPermNoExecute MMUFlags = 1 << 4
	MMUFlagNS            MMUFlags = 1 << 5
	// MMUFlagInvalid marks the absence of a neighbouring region when picking a spot
	MMUFlagInvalid MMUFlags = 1 << 7
)

var cachePolicyMapping = map[MMUFlags]string{
	MMUFlagCached:         "MMUFlagCached",
	MMUFlagUncached:       "MMUFlagUncached",
	MMUFlagUncachedDevice: "MMUFlagUncachedDevice",
	MMUFlagWriteCombining: "MMUFlagWriteCombining",
}

var mmuFlagsMapping = memutils.NewFlagStringMapping[MMUFlags]()

func init() {
	mmuFlagsMapping.Register(MMUFlagPermUser, "MMUFlagPermUser")
	mmuFlagsMapping.Register(MMUFlagPermReadOnly, "MMUFlagPermReadOnly")
	mmuFlagsMapping.Register(MMUFlagPermNoExecute, "MMUFlagPermNoExecute")
	mmuFlagsMapping.Register(MMUFlagNS, "MMUFlagNS")
	mmuFlagsMapping.Register(MMUFlagInvalid, "MMUFlagInvalid")
}

func (f MMUFlags) String() string {
	var sb strings.Builder
	sb.WriteString(cachePolicyMapping[f&MMUFlagCacheMask])

	if perms := f &^ MMUFlagCacheMask; perms != 0 {
		sb.WriteRune('|')
		sb.WriteString(mmuFlagsMapping.FlagsToString(perms))
	}

	return sb.String()
}

// CachePolicy returns only the cache policy bits
func (f MMUFlags) CachePolicy() MMUFlags { return f & MMUFlagCacheMask }

func (f MMUFlags) IsUser() bool { return f&MMUFlagPermUser != 0 }
func (f MMUFlags) IsReadOnly() bool { return f&MMUFlagPermReadOnly != 0 }
func (f MMUFlags) IsNoExecute() bool { return f&MMUFlagPermNoExecute != 0 }

// AspaceFlags are passed to MMU.InitAspace
type AspaceFlags uint32

const (
	AspaceFlagKernel AspaceFlags = 1 << iota
)

var aspaceFlagsMapping = memutils.NewFlagStringMapping[AspaceFlags]()

func init() {
	aspaceFlagsMapping.Register(AspaceFlagKernel, "AspaceFlagKernel")
}

func (f AspaceFlags) String() string {
	return aspaceFlagsMapping.FlagsToString(f)
}
