package ais

// NavStatus is the AIS navigation status code (0-15).
type NavStatus int

const (
	StatusUnderwayEngine NavStatus = iota
	StatusAtAnchor
	StatusNotUnderCommand
	StatusRestrictedManeuverability
	StatusConstrainedByDraught
	StatusMoored
	StatusAground
	StatusFishing
	StatusUnderwaySailing
	StatusReservedHSC
	StatusReservedWIG
	StatusReserved11
	StatusReserved12
	StatusReserved13
	StatusSARTActive
	StatusNotDefined
)

// NavStatusFromCode maps a raw AIS code to a NavStatus. Codes outside 0-15
// come back as StatusNotDefined rather than an error.
func NavStatusFromCode(code int) NavStatus {
	if code < 0 || code > 15 {
		return StatusNotDefined
	}
	return NavStatus(code)
}

var navStatusText = map[NavStatus]string{
	StatusUnderwayEngine:            "Under way using engine",
	StatusAtAnchor:                  "At anchor",
	StatusNotUnderCommand:           "Not under command",
	StatusRestrictedManeuverability: "Restricted manoeuvrability",
	StatusConstrainedByDraught:      "Constrained by draught",
	StatusMoored:                    "Moored",
	StatusAground:                   "Aground",
	StatusFishing:                   "Engaged in fishing",
	StatusUnderwaySailing:           "Under way sailing",
	StatusReservedHSC:               "Reserved for HSC",
	StatusReservedWIG:               "Reserved for WIG",
	StatusReserved11:                "Reserved",
	StatusReserved12:                "Reserved",
	StatusReserved13:                "Reserved",
	StatusSARTActive:                "AIS-SART active",
	StatusNotDefined:                "Not defined",
}

func (s NavStatus) String() string {
	if text, ok := navStatusText[s]; ok {
		return text
	}
	return "Unknown"
}
