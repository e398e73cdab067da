package routing

// Mode is the transport mode of a direct route.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeWalking Mode = "walking"
	ModeCycling Mode = "cycling"
)

// Valid reports whether m is a recognised direct-routing mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDriving, ModeWalking, ModeCycling:
		return true
	}
	return false
}

// DetourMode is the transport mode of a detour route.
type DetourMode string

const (
	DetourTaxi DetourMode = "taxi"
	DetourBus  DetourMode = "bus"
	DetourMoto DetourMode = "moto"
)

// Valid reports whether m is a recognised detour mode.
func (m DetourMode) Valid() bool {
	switch m {
	case DetourTaxi, DetourBus, DetourMoto:
		return true
	}
	return false
}

// Profile is the external routing service's travel profile.
type Profile string

const (
	ProfileFoot Profile = "foot"
	ProfileBike Profile = "bike"
	ProfileCar  Profile = "car"
)

// ProfileForMode maps a direct-routing mode to an external profile.
func ProfileForMode(m Mode) Profile {
	switch m {
	case ModeWalking:
		return ProfileFoot
	case ModeCycling:
		return ProfileBike
	default:
		return ProfileCar
	}
}

// ProfileForDetourMode maps a detour mode to an external profile.
func ProfileForDetourMode(m DetourMode) Profile {
	if m == DetourMoto {
		return ProfileBike
	}
	return ProfileCar
}

// Graph speeds in edge cost units per hour. A fixed tier per mode, not a traffic model.
const (
	SpeedDriving = 25.0
	SpeedWalking = 2.0
	SpeedOther   = 8.0
)

// SpeedForMode returns the constant graph travel speed for m.
func SpeedForMode(m Mode) float64 {
	switch m {
	case ModeDriving:
		return SpeedDriving
	case ModeWalking:
		return SpeedWalking
	default:
		return SpeedOther
	}
}
