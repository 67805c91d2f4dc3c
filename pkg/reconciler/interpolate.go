package reconciler

import "github.com/kessho/udp-telemetry-go/pkg/registry"

// componentStep holds one sensor component's interpolated step sequence
// across a gap of n rows times k sub-readings per row.
type componentStep struct {
	present bool
	subs    [][]float32 // [row][subStep], len(subs) == n, len(subs[i]) == k
	means   []float32   // len(means) == n
}

// interpolateComponent produces n row means (and, when k > 1, the
// underlying k sub-steps per row) for one sensor component, per spec.md
// §4.5: step = (right-left)/(n*k+1), applied once per sub-step; a row's
// canonical value is the mean of its k sub-steps.
func interpolateComponent(leftOk bool, left float32, rightOk bool, right float32, n, k int) componentStep {
	if !leftOk || !rightOk {
		return componentStep{present: false}
	}

	step := (right - left) / float32(n*k+1)

	subs := make([][]float32, n)
	means := make([]float32, n)
	idx := 0
	for i := 0; i < n; i++ {
		row := make([]float32, k)
		var sum float32
		for j := 0; j < k; j++ {
			idx++
			v := left + step*float32(idx)
			row[j] = v
			sum += v
		}
		subs[i] = row
		means[i] = sum / float32(k)
	}

	return componentStep{present: true, subs: subs, means: means}
}

// GapFill is the materialized result of closing a gap of n sequence
// positions with a right-endpoint batch size of k (k == 1 outside batch
// mode).
type GapFill struct {
	N int
	K int

	Temperature componentStep
	Humidity    componentStep
	Voltage     componentStep
}

// Fill computes the interpolated stretch between left and right endpoint
// triples. If left has no real reading at all (gap precedes any data),
// callers pass left == right so the synthesized stretch is constant, per
// spec.md §4.5.
func Fill(left, right registry.Values, n, k int) GapFill {
	return GapFill{
		N:           n,
		K:           k,
		Temperature: interpolateComponent(left.TemperatureOk, left.Temperature, right.TemperatureOk, right.Temperature, n, k),
		Humidity:    interpolateComponent(left.HumidityOk, left.Humidity, right.HumidityOk, right.Humidity, n, k),
		Voltage:     interpolateComponent(left.VoltageOk, left.Voltage, right.VoltageOk, right.Voltage, n, k),
	}
}

// RowValues returns the canonical (mean-if-batched) triple for row i
// (0-indexed within the gap).
func (g GapFill) RowValues(i int) registry.Values {
	var v registry.Values
	if g.Temperature.present {
		v.Temperature = g.Temperature.means[i]
		v.TemperatureOk = true
	}
	if g.Humidity.present {
		v.Humidity = g.Humidity.means[i]
		v.HumidityOk = true
	}
	if g.Voltage.present {
		v.Voltage = g.Voltage.means[i]
		v.VoltageOk = true
	}
	return v
}
