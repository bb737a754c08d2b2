package ais

import "strings"

// ShipClass is a simplified vessel category derived from the AIS ship type
// code or from scenario configuration.
type ShipClass string

const (
	ClassCargo          ShipClass = "cargo"
	ClassTanker         ShipClass = "tanker"
	ClassPassenger      ShipClass = "passenger"
	ClassFishing        ShipClass = "fishing"
	ClassMilitary       ShipClass = "military"
	ClassPleasureCraft  ShipClass = "pleasure_craft"
	ClassHighSpeedCraft ShipClass = "high_speed_craft"
	ClassTug            ShipClass = "tug"
	ClassPilotVessel    ShipClass = "pilot_vessel"
	ClassSearchRescue   ShipClass = "search_and_rescue"
	ClassDredger        ShipClass = "dredger"
	ClassLawEnforcement ShipClass = "law_enforcement"
	ClassSailing        ShipClass = "sailing"
	ClassOther          ShipClass = "other"
	ClassUnknown        ShipClass = "unknown"
)

var shipClasses = map[string]ShipClass{
	"cargo":             ClassCargo,
	"tanker":            ClassTanker,
	"passenger":         ClassPassenger,
	"fishing":           ClassFishing,
	"military":          ClassMilitary,
	"pleasure_craft":    ClassPleasureCraft,
	"high_speed_craft":  ClassHighSpeedCraft,
	"tug":               ClassTug,
	"pilot_vessel":      ClassPilotVessel,
	"search_and_rescue": ClassSearchRescue,
	"dredger":           ClassDredger,
	"law_enforcement":   ClassLawEnforcement,
	"sailing":           ClassSailing,
	"other":             ClassOther,
	"unknown":           ClassUnknown,
}

// ParseShipClass maps free-form input to a ShipClass. Unrecognised input maps
// to ClassUnknown rather than failing.
func ParseShipClass(s string) ShipClass {
	if c, ok := shipClasses[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return ClassUnknown
}

// ShipClassFromAISCode converts a raw AIS ship type code (message type 5) to
// a ShipClass.
func ShipClassFromAISCode(code int) ShipClass {
	switch {
	case code >= 70 && code <= 79:
		return ClassCargo
	case code >= 80 && code <= 89:
		return ClassTanker
	case code >= 60 && code <= 69:
		return ClassPassenger
	case code == 30:
		return ClassFishing
	case code == 35:
		return ClassMilitary
	case code == 36:
		return ClassSailing
	case code == 37:
		return ClassPleasureCraft
	case code >= 40 && code <= 49:
		return ClassHighSpeedCraft
	case code >= 31 && code <= 32:
		return ClassTug
	case code == 50:
		return ClassPilotVessel
	case code == 51:
		return ClassSearchRescue
	case code == 33:
		return ClassDredger
	case code == 55:
		return ClassLawEnforcement
	case code == 0:
		return ClassUnknown
	default:
		return ClassOther
	}
}
