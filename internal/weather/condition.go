package weather

import (
	"fmt"
	"strings"
)

// Condition is compact display model of sky state.
// Append new values before conditionCount.
type Condition uint8

const (
	ConditionUnknown Condition = iota
	ConditionClear
	ConditionClouds
	ConditionRain
	ConditionSnow
	ConditionThunder
	ConditionMist
	conditionCount
)

var conditionNames = [conditionCount]string{
	ConditionUnknown: "Unknown",
	ConditionClear:   "Clear",
	ConditionClouds:  "Clouds",
	ConditionRain:    "Rain",
	ConditionSnow:    "Snow",
	ConditionThunder: "Thunder",
	ConditionMist:    "Mist",
}

func (c Condition) String() string {
	if c < conditionCount {
		return conditionNames[c]
	}
	return fmt.Sprintf("Condition(%d)", c)
}

func (c Condition) Valid() bool { return c < conditionCount }

// Icon keys of built-in display icon set.
const (
	IconClearDay     = "clearday"
	IconClearNight   = "clearnight"
	IconRain         = "rain"
	IconLightRain    = "lightrain"
	IconSnow         = "snow"
	IconSleet        = "sleet"
	IconWind         = "wind"
	IconFog          = "fog"
	IconCloudy       = "cloudy"
	IconPartlyCloudy = "partlycloudy"
	IconThunderstorm = "thunderstorm"
	IconTornado      = "tornado"
	IconNone         = "none"
)

type class struct {
	cond  Condition
	icon  string
	label string
}

// Classify maps provider condition id, group name and icon code
// to Condition, display icon key and human label. Never fails.
func Classify(id int, main string, icon string) (Condition, string, string) {
	night := strings.HasSuffix(icon, "n")
	if c, ok := classifyID(id, night); ok {
		return c.cond, c.icon, c.label
	}
	c := classifyMain(main, night)
	return c.cond, c.icon, c.label
}

func classifyID(id int, night bool) (class, bool) {
	switch {
	case id >= 200 && id < 300:
		return class{ConditionThunder, IconThunderstorm, "Thunderstorm"}, true
	case id >= 300 && id < 400:
		return class{ConditionRain, IconLightRain, "Drizzle"}, true
	case id >= 500 && id < 600:
		return class{ConditionRain, IconRain, "Rain"}, true
	case id >= 611 && id <= 616:
		return class{ConditionSnow, IconSleet, "Sleet"}, true
	case id >= 600 && id < 700:
		return class{ConditionSnow, IconSnow, "Snow"}, true
	case id == 771:
		return class{ConditionMist, IconWind, "Windy"}, true
	case id == 781:
		return class{ConditionThunder, IconTornado, "Tornado"}, true
	case id >= 700 && id < 800:
		return class{ConditionMist, IconFog, "Foggy"}, true
	case id == 800:
		return clearSky(night), true
	case id >= 801 && id <= 803:
		return class{ConditionClouds, IconPartlyCloudy, "Partly cloudy"}, true
	case id == 804:
		return class{ConditionClouds, IconCloudy, "Cloudy"}, true
	}
	return class{}, false
}

func classifyMain(main string, night bool) class {
	switch strings.ToLower(strings.TrimSpace(main)) {
	case "thunderstorm", "thunder":
		return class{ConditionThunder, IconThunderstorm, "Thunderstorm"}
	case "drizzle":
		return class{ConditionRain, IconLightRain, "Drizzle"}
	case "rain":
		return class{ConditionRain, IconRain, "Rain"}
	case "snow":
		return class{ConditionSnow, IconSnow, "Snow"}
	case "sleet":
		return class{ConditionSnow, IconSleet, "Sleet"}
	case "clear":
		return clearSky(night)
	case "clouds", "cloudy":
		return class{ConditionClouds, IconCloudy, "Cloudy"}
	case "mist", "fog", "haze", "smoke", "dust", "sand", "ash":
		return class{ConditionMist, IconFog, "Foggy"}
	case "squall", "wind", "windy":
		return class{ConditionMist, IconWind, "Windy"}
	case "tornado":
		return class{ConditionThunder, IconTornado, "Tornado"}
	}
	label := strings.TrimSpace(main)
	if label == "" {
		label = "None"
	}
	return class{ConditionUnknown, IconNone, label}
}

func clearSky(night bool) class {
	if night {
		return class{ConditionClear, IconClearNight, "Clear night"}
	}
	return class{ConditionClear, IconClearDay, "Clear day"}
}
