package slalevel

import "strings"

type Level struct {
	Name string
}

func (l Level) Code() string {
	return l.Name
}

func (l Level) Label() string {
	if len(l.Name) == 0 {
		return ""
	}
	return strings.ToUpper(l.Name[:1]) + l.Name[1:]
}

type Enum struct {
	Normal   Level
	Warning  Level
	Critical Level
	Expired  Level
}

var Levels = Enum{
	Normal:   Level{Name: "normal"},
	Warning:  Level{Name: "warning"},
	Critical: Level{Name: "critical"},
	Expired:  Level{Name: "expired"},
}

var All = []Level{
	Levels.Normal,
	Levels.Warning,
	Levels.Critical,
	Levels.Expired,
}

// ByName returns the level for a given name, or nil if not found
func ByName(name string) *Level {
	for _, l := range All {
		if l.Name == name {
			return &l
		}
	}
	return nil
}

// Collapsed buckets used for the overall ticket status shown on
// order-status displays.
const (
	BucketOnTime  = "on_time"
	BucketAtRisk  = "at_risk"
	BucketDelayed = "delayed"
)

// BucketFor collapses a level into the three dashboard buckets.
func BucketFor(l Level) string {
	switch l.Name {
	case Levels.Normal.Name:
		return BucketOnTime
	case Levels.Warning.Name:
		return BucketAtRisk
	default:
		return BucketDelayed
	}
}
