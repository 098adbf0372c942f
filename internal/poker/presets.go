package poker

type Preset string

const (
	PresetFibonacci Preset = "fibonacci"
	PresetDays      Preset = "days"
	PresetHours     Preset = "hours"
	PresetYesNo     Preset = "yes-no"
)

var presetValues = map[Preset][]*Estimate{
	PresetFibonacci: {Number(0), Number(1), Number(2), Number(3), Number(5), Number(8), Number(13), Number(21), Number(34), Number(55), Number(89), Text("?")},
	PresetDays:      {Number(0.5), Number(1), Number(2), Number(3), Number(4), Number(5), Number(10), Number(15), Number(20)},
	PresetHours:     {Number(1), Number(2), Number(4), Number(8), Number(16), Number(24), Number(32), Number(40)},
	PresetYesNo:     {Text("yes"), Text("no")},
}

// Presets lists every preset in a stable order.
var Presets = []Preset{PresetFibonacci, PresetDays, PresetHours, PresetYesNo}

func (p Preset) Valid() bool {
	_, ok := presetValues[p]
	return ok
}

// Values returns the cards a client offers for this preset.
func (p Preset) Values() []*Estimate {
	return presetValues[p]
}

// MaxTimerDuration caps a round timer, in seconds.
const MaxTimerDuration = 24 * 60 * 60

// ValidTimer reports whether seconds is usable as a room's timerDuration.
func ValidTimer(seconds int) bool {
	return seconds >= 0 && seconds <= MaxTimerDuration
}
