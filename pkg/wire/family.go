package wire

// Family is the ALSA FireWire device family code reported by the hwdep
// interface (SNDRV_FIREWIRE_TYPE_*).
type Family uint32

const (
	FamilyUnknown   Family = 0
	FamilyDICE      Family = 1
	FamilyFireworks Family = 2
	FamilyBeBoB     Family = 3
	FamilyOXFW      Family = 4
	FamilyDigi00x   Family = 5
	FamilyTascam    Family = 6
	FamilyMOTU      Family = 7
	FamilyFireface  Family = 8
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyDICE:
		return "DICE"
	case FamilyFireworks:
		return "FIREWORKS"
	case FamilyBeBoB:
		return "BEBOB"
	case FamilyOXFW:
		return "OXFW"
	case FamilyDigi00x:
		return "DIGI00X"
	case FamilyTascam:
		return "TASCAM"
	case FamilyMOTU:
		return "MOTU"
	case FamilyFireface:
		return "FIREFACE"
	default:
		return "UNKNOWN"
	}
}

// SupportsFCP returns true if units of this family accept AV/C commands over
// FCP. DICE units do not implement FCP.
func (f Family) SupportsFCP() bool {
	return f != FamilyDICE
}
