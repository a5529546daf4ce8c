package indicator

// Indicator names exposed in a snapshot mapping
const (
	NameEMAFast  = "ema.close.9"
	NameEMASlow  = "ema.close.21"
	NameRSI      = "rsi.close.14"
	NameMACD     = "macd.line"
	NameSignal   = "macd.signal"
	NameBBUpper  = "bb.upper.20"
	NameBBMiddle = "bb.middle.20"
	NameBBLower  = "bb.lower.20"
)

// Snapshot is the point-in-time indicator state for one series.
// A nil field has not been computed yet.
type Snapshot struct {
	EMAFast    *float64
	EMASlow    *float64
	RSI        *float64
	MACD       *float64
	MACDSignal *float64
	BBUpper    *float64
	BBMiddle   *float64
	BBLower    *float64
}

// Mapping returns the computed indicators keyed by name; absent fields are omitted
func (s Snapshot) Mapping() map[string]float64 {
	out := make(map[string]float64, 8)
	put := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	put(NameEMAFast, s.EMAFast)
	put(NameEMASlow, s.EMASlow)
	put(NameRSI, s.RSI)
	put(NameMACD, s.MACD)
	put(NameSignal, s.MACDSignal)
	put(NameBBUpper, s.BBUpper)
	put(NameBBMiddle, s.BBMiddle)
	put(NameBBLower, s.BBLower)
	return out
}

// Empty reports whether no indicator has been computed
func (s Snapshot) Empty() bool {
	return s.EMAFast == nil && s.EMASlow == nil && s.RSI == nil && s.MACD == nil &&
		s.MACDSignal == nil && s.BBUpper == nil && s.BBMiddle == nil && s.BBLower == nil
}

func opt(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// Names returns every indicator name a snapshot can carry
func Names() []string {
	return []string{NameEMAFast, NameEMASlow, NameRSI, NameMACD, NameSignal, NameBBUpper, NameBBMiddle, NameBBLower}
}
