package tsl

import "sort"

// Category is a presentation category a device's properties call for.
type Category string

const (
	CategoryLight        Category = "light"
	CategorySensor       Category = "sensor"
	CategoryBinarySensor Category = "binary_sensor"
	CategoryNumber       Category = "number"
	CategorySelect       Category = "select"
	CategorySwitch       Category = "switch"
)

// categoryByProperty is the static identifier to category table.
var categoryByProperty = map[string]Category{
	"OnOff":             CategoryLight,
	"CurrentLevel":      CategoryLight,
	"ColorTemperature":  CategoryLight,
	"CurrentHue":        CategoryLight,
	"CurrentSaturation": CategoryLight,
	"CurrentX":          CategoryLight,
	"CurrentY":          CategoryLight,

	"IllumMeasuredValue":        CategorySensor,
	"Temperature":               CategorySensor,
	"Humidity":                  CategorySensor,
	"CurrentSummationDelivered": CategorySensor,
	"ActivePower_User":          CategorySensor,

	"OccupancyState":                  CategoryBinarySensor,
	"MotionSensorIntrusionIndication": CategoryBinarySensor,

	"MinLevelSet":            CategoryNumber,
	"LevelControlMinLevel":   CategoryNumber,
	"LevelControlMaxLevel":   CategoryNumber,
	"OnOffTransitionTime":    CategoryNumber,
	"OnTransitionTime":       CategoryNumber,
	"OffTransitionTime":      CategoryNumber,
	"IlluminanceThreshold":   CategoryNumber,
	"OccupancyDetectionArea": CategoryNumber,

	"StartUpOnOff": CategorySelect,

	"OccupancyLEDStatus": CategorySwitch,
}

// CategoryFor returns the category property id maps to, if any.
func CategoryFor(id string) (Category, bool) {
	c, ok := categoryByProperty[id]
	return c, ok
}

// RequiredCategories returns the sorted, de-duplicated categories the
// model's properties map to. A nil model maps to none.
func RequiredCategories(m *Model) []Category {
	if m == nil {
		return nil
	}
	set := make(map[Category]struct{})
	for _, p := range m.Properties {
		if c, ok := categoryByProperty[p.Identifier]; ok {
			set[c] = struct{}{}
		}
	}
	out := make([]Category, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
