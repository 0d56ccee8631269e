package alarm

import (
	"errors"
	"math"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// equalsTolerance is the half-width of the band a sensor reading must
// fall inside for an equals condition to fire. Readings are floats from
// field hardware; exact comparison would never match.
const equalsTolerance = 0.1

// sensorAliases are the status fields probed for a sensor reading, in
// fixed order. The first present, non-nil field wins even when it turns
// out to be non-numeric.
var sensorAliases = [...]string{"temperature", "humidity", "value", "reading"}

// offFields are the status fields probed by an off condition, in fixed
// order. The first present, non-nil field decides.
var offFields = [...]string{"is_on", "is_running"}

var errNoStatusSource = errors.New("alarm: no status source")

// StatusFunc reads the live status of a named piece of equipment.
// The alarm engine backs it with the field-bus gateway; tests back it
// with a map.
type StatusFunc func(name string) (equipment.StatusMap, error)

// Evaluate resolves one alarm condition to a verdict. It never panics
// and never returns an error: every lookup failure and type mismatch
// collapses to a condition-specific boolean.
//
// Sensor conditions: a failed lookup, missing reading, missing
// threshold, non-numeric reading, or unknown operator all evaluate
// false. Otherwise the extracted reading v is compared to the
// threshold t: above is v > t, below is v < t, equals is |v-t| inside
// the tolerance band.
//
// Equipment conditions: a failed lookup evaluates true for off and
// error (unreachable equipment might be stopped or faulted, and this
// engine exists to raise alarms, not suppress them) and false for
// not_running. On a successful lookup: off fires when the first
// present on/running field is false, not_running fires when
// is_running is present and false, error fires when the status
// carries an error field. Unknown operators evaluate false.
func Evaluate(cond rules.AlarmCondition, lookup StatusFunc) bool {
	switch cond.SourceType {
	case rules.SourceSensor:
		return evaluateSensor(cond, lookup)
	case rules.SourceEquipment:
		return evaluateEquipment(cond, lookup)
	default:
		return false
	}
}

// SensorReading extracts a numeric reading from a sensor status map,
// probing the alias fields in fixed order. The first present, non-nil
// alias wins; if its value is non-numeric the extraction fails rather
// than falling through to later aliases.
func SensorReading(status equipment.StatusMap) (float64, bool) {
	for _, key := range sensorAliases {
		v, present := status[key]
		if !present || v == nil {
			continue
		}
		return status.Float(key)
	}
	return 0, false
}

func evaluateSensor(cond rules.AlarmCondition, lookup StatusFunc) bool {
	if cond.Threshold == nil {
		return false
	}

	status, err := fetch(lookup, cond.SourceName)
	if err != nil || status == nil {
		return false
	}

	v, ok := SensorReading(status)
	if !ok {
		return false
	}

	t := *cond.Threshold
	switch cond.Condition {
	case rules.CondAbove:
		return v > t
	case rules.CondBelow:
		return v < t
	case rules.CondEquals:
		return math.Abs(v-t) < equalsTolerance
	default:
		return false
	}
}

func evaluateEquipment(cond rules.AlarmCondition, lookup StatusFunc) bool {
	status, err := fetch(lookup, cond.SourceName)
	if err != nil || status == nil {
		switch cond.Condition {
		case rules.CondOff, rules.CondError:
			return true
		default:
			return false
		}
	}

	switch cond.Condition {
	case rules.CondOff:
		return equipmentOff(status)
	case rules.CondNotRunning:
		running, ok := status.Bool("is_running")
		return ok && !running
	case rules.CondError:
		_, faulted := status.ErrorValue()
		return faulted
	default:
		return false
	}
}

// equipmentOff reports whether a status map describes stopped equipment.
// The first present, non-nil field of is_on/is_running decides; a
// non-boolean value there never fires.
func equipmentOff(status equipment.StatusMap) bool {
	for _, key := range offFields {
		v, present := status[key]
		if !present || v == nil {
			continue
		}
		b, ok := v.(bool)
		return ok && !b
	}
	return false
}

func fetch(lookup StatusFunc, name string) (equipment.StatusMap, error) {
	if lookup == nil {
		return nil, errNoStatusSource
	}
	return lookup(name)
}
