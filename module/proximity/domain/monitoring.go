package domain

type MonitoringMode int

const (
	ModeInactive MonitoringMode = iota
	ModeCoarse
	ModePrecise
)

func (m MonitoringMode) String() string {
	switch m {
	case ModeInactive:
		return "inactive"
	case ModeCoarse:
		return "coarse"
	case ModePrecise:
		return "precise"
	default:
		return "unknown"
	}
}

func (m MonitoringMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
