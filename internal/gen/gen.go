// Package gen implements the SoundFont generator vector: a fixed 60-slot
// array of signed 16-bit values with per-slot default and range, and the
// preset+instrument combination rule.
package gen

// ID identifies one of the 60 SoundFont generator slots.
type ID int

const (
	StartAddrsOffset ID = iota
	EndAddrsOffset
	StartloopAddrsOffset
	EndloopAddrsOffset
	StartAddrsCoarseOffset
	ModLfoToPitch
	VibLfoToPitch
	ModEnvToPitch
	InitialFilterFc
	InitialFilterQ
	ModLfoToFilterFc
	ModEnvToFilterFc
	EndAddrsCoarseOffset
	ModLfoToVolume
	Unused1
	ChorusEffectsSend
	ReverbEffectsSend
	Pan
	Unused2
	Unused3
	Unused4
	DelayModLFO
	FreqModLFO
	DelayVibLFO
	FreqVibLFO
	DelayModEnv
	AttackModEnv
	HoldModEnv
	DecayModEnv
	SustainModEnv
	ReleaseModEnv
	KeyNumToModEnvHold
	KeyNumToModEnvDecay
	DelayVolEnv
	AttackVolEnv
	HoldVolEnv
	DecayVolEnv
	SustainVolEnv
	ReleaseVolEnv
	KeyNumToVolEnvHold
	KeyNumToVolEnvDecay
	Instrument
	Reserved1
	KeyRange
	VelRange
	StartloopAddrsCoarseOffset
	KeyNumOverride
	VelocityOverride
	InitialAttenuation
	Reserved2
	EndloopAddrsCoarseOffset
	CoarseTune
	FineTune
	SampleID
	SampleModes
	Reserved3
	ScaleTuning
	ExclusiveClass
	OverridingRootKey
	Unused5

	// Count is the number of generator slots; matches spec.md's "exactly 60".
	Count
)

// Vector is the 60-slot generator array.
type Vector [Count]int16

// genRange describes the defined min/max for a generator slot. Ranges come
// from the SoundFont 2.04 specification's generator enumerator table.
type genRange struct {
	def      int16
	min, max int16
}

// ranges holds default/min/max per slot. Slots with sentinel "not set"
// semantics (overridingRootKey, keyNum, velocity) default to -1, which must
// survive generator combination untouched.
var ranges = [Count]genRange{
	StartAddrsOffset:           {0, -32768, 32767},
	EndAddrsOffset:             {0, -32768, 32767},
	StartloopAddrsOffset:       {0, -32768, 32767},
	EndloopAddrsOffset:         {0, -32768, 32767},
	StartAddrsCoarseOffset:     {0, -32768, 32767},
	ModLfoToPitch:              {0, -12000, 12000},
	VibLfoToPitch:              {0, -12000, 12000},
	ModEnvToPitch:              {0, -12000, 12000},
	InitialFilterFc:            {13500, 1500, 13500},
	InitialFilterQ:             {0, 0, 960},
	ModLfoToFilterFc:           {0, -12000, 12000},
	ModEnvToFilterFc:           {0, -12000, 12000},
	EndAddrsCoarseOffset:       {0, -32768, 32767},
	ModLfoToVolume:             {0, -960, 960},
	Unused1:                    {0, -32768, 32767},
	ChorusEffectsSend:          {0, 0, 1000},
	ReverbEffectsSend:          {0, 0, 1000},
	Pan:                        {0, -500, 500},
	Unused2:                    {0, -32768, 32767},
	Unused3:                    {0, -32768, 32767},
	Unused4:                    {0, -32768, 32767},
	DelayModLFO:                {-12000, -12000, 5000},
	FreqModLFO:                 {0, -16000, 4500},
	DelayVibLFO:                {-12000, -12000, 5000},
	FreqVibLFO:                 {0, -16000, 4500},
	DelayModEnv:                {-12000, -12000, 5000},
	AttackModEnv:               {-12000, -12000, 8000},
	HoldModEnv:                 {-12000, -12000, 5000},
	DecayModEnv:                {-12000, -12000, 8000},
	SustainModEnv:              {0, 0, 1000},
	ReleaseModEnv:              {-12000, -12000, 8000},
	KeyNumToModEnvHold:         {0, -1200, 1200},
	KeyNumToModEnvDecay:        {0, -1200, 1200},
	DelayVolEnv:                {-12000, -12000, 5000},
	AttackVolEnv:               {-12000, -12000, 8000},
	HoldVolEnv:                 {-12000, -12000, 5000},
	DecayVolEnv:                {-12000, -12000, 8000},
	SustainVolEnv:              {0, 0, 1440},
	ReleaseVolEnv:              {-12000, -12000, 8000},
	KeyNumToVolEnvHold:         {0, -1200, 1200},
	KeyNumToVolEnvDecay:        {0, -1200, 1200},
	Instrument:                 {0, 0, 32767},
	Reserved1:                  {0, -32768, 32767},
	KeyRange:                   {0, 0, 127},
	VelRange:                   {0, 0, 127},
	StartloopAddrsCoarseOffset: {0, -32768, 32767},
	KeyNumOverride:             {-1, -1, 127},
	VelocityOverride:           {-1, -1, 127},
	InitialAttenuation:         {0, 0, 1440},
	Reserved2:                  {0, -32768, 32767},
	EndloopAddrsCoarseOffset:   {0, -32768, 32767},
	CoarseTune:                 {0, -120, 120},
	FineTune:                   {0, -99, 99},
	SampleID:                   {0, 0, 32767},
	SampleModes:                {0, 0, 3},
	Reserved3:                  {0, -32768, 32767},
	ScaleTuning:                {100, 0, 1200},
	ExclusiveClass:             {0, 0, 127},
	OverridingRootKey:          {-1, -1, 127},
	Unused5:                    {0, -32768, 32767},
}

// Default returns the fully-defaulted generator vector.
func Default() Vector {
	var v Vector
	for i := range v {
		v[i] = ranges[i].def
	}
	return v
}

// clamp applies the generator's defined range, except for slots whose
// "unset" sentinel (-1) must pass through untouched even if -1 falls
// outside [min,max] (it never does for those three slots, but the check
// keeps the rule explicit per spec.md 4.B).
func clamp(id ID, v int32) int16 {
	if v == -1 && (id == OverridingRootKey || id == KeyNumOverride || id == VelocityOverride) {
		return -1
	}
	r := ranges[id]
	if v < int32(r.min) {
		return r.min
	}
	if v > int32(r.max) {
		return r.max
	}
	return int16(v)
}

// Combine sums preset-layer and instrument-layer generator vectors slot by
// slot and clamps each sum to the slot's defined range, per spec.md 4.B.
// Sentinel-valued slots (overridingRootKey, keyNum, velocity) default to -1
// and survive combination if neither layer sets them away from -1; when only
// one layer sets such a slot, its value is taken as is.
func Combine(presetVec, instrumentVec Vector) Vector {
	var out Vector
	for i := ID(0); i < Count; i++ {
		if i == OverridingRootKey || i == KeyNumOverride || i == VelocityOverride {
			if presetVec[i] == -1 {
				out[i] = clamp(i, int32(instrumentVec[i]))
				continue
			}
			if instrumentVec[i] == -1 {
				out[i] = clamp(i, int32(presetVec[i]))
				continue
			}
		}
		sum := int32(presetVec[i]) + int32(instrumentVec[i])
		out[i] = clamp(i, sum)
	}
	return out
}

// ApplyEMUAttenuationScale scales the initial-attenuation slot by 0.4 to
// match the EMU reference hardware behavior spec.md 4.B requires.
func ApplyEMUAttenuationScale(v *Vector) {
	v[InitialAttenuation] = int16(float64(v[InitialAttenuation]) * 0.4)
}

// KeyRangeLow/KeyRangeHigh/VelRangeLow/VelRangeHigh unpack the
// low-byte/high-byte generator amount used by keyRange and velRange: the
// low byte holds the inclusive range minimum, the high byte the maximum.
func KeyRangeLow(v Vector) int  { return int(uint16(v[KeyRange]) & 0xFF) }
func KeyRangeHigh(v Vector) int { return int((uint16(v[KeyRange]) >> 8) & 0xFF) }
func VelRangeLow(v Vector) int  { return int(uint16(v[VelRange]) & 0xFF) }
func VelRangeHigh(v Vector) int { return int((uint16(v[VelRange]) >> 8) & 0xFF) }
