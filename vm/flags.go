package vm

import "github.com/punktos/vmm/memutils"

// AspaceType selects the address range of a new address space
type AspaceType uint32

const (
	AspaceTypeUser AspaceType = iota
	AspaceTypeKernel
	// AspaceTypeLowKernel spans from zero to the end of user space
	AspaceTypeLowKernel
)

var aspaceTypeMapping = map[AspaceType]string{
	AspaceTypeUser:      "AspaceTypeUser",
	AspaceTypeKernel:    "AspaceTypeKernel",
	AspaceTypeLowKernel: "AspaceTypeLowKernel",
}

func (t AspaceType) String() string {
	return aspaceTypeMapping[t]
}

// Flags modify how an address space allocates and maps a region
type Flags uint32

const (
	// FlagVallocSpecific places the region at MappingInfo.Vaddr instead of searching for a gap
	FlagVallocSpecific Flags = 1 << iota
	// FlagCommit populates and maps the region immediately instead of on fault
	FlagCommit
)

var flagsMapping = memutils.NewFlagStringMapping[Flags]()

func init() {
	flagsMapping.Register(FlagVallocSpecific, "FlagVallocSpecific")
	flagsMapping.Register(FlagCommit, "FlagCommit")
}

func (f Flags) String() string {
	return flagsMapping.FlagsToString(f)
}

// FaultFlags describe the access that raised a page fault
type FaultFlags uint32

const (
	FaultFlagWrite FaultFlags = 1 << iota
	FaultFlagUser
	FaultFlagInstruction
	FaultFlagNotPresent
)

var faultFlagsMapping = memutils.NewFlagStringMapping[FaultFlags]()

func init() {
	faultFlagsMapping.Register(FaultFlagWrite, "FaultFlagWrite")
	faultFlagsMapping.Register(FaultFlagUser, "FaultFlagUser")
	faultFlagsMapping.Register(FaultFlagInstruction, "FaultFlagInstruction")
	faultFlagsMapping.Register(FaultFlagNotPresent, "FaultFlagNotPresent")
}

func (f FaultFlags) String() string {
	return faultFlagsMapping.FlagsToString(f)
}
