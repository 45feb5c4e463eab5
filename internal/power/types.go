package power

import "strings"

// OutputType is the kind of power quantity a model predicts.
type OutputType string

const (
	// OutputTypeAbsPower predicts absolute (idle + dynamic) node power.
	OutputTypeAbsPower OutputType = "AbsPower"

	// OutputTypeDynPower predicts the dynamic share of power attributable to the workload.
	OutputTypeDynPower OutputType = "DynPower"
)

// SupportedOutputTypes lists the output types the estimator serves.
var SupportedOutputTypes = []OutputType{OutputTypeAbsPower, OutputTypeDynPower}

// IsSupported reports whether t is one of SupportedOutputTypes.
func (t OutputType) IsSupported() bool {
	for _, s := range SupportedOutputTypes {
		if t == s {
			return true
		}
	}
	return false
}

// String returns the output type name.
func (t OutputType) String() string {
	return string(t)
}

// EnergySource identifies the energy domain a model was trained against.
type EnergySource string

const (
	// SourceRAPL is the canonical RAPL source. Every RAPL flavour maps to it.
	SourceRAPL EnergySource = "rapl-sysfs"

	raplMarker = "rapl"
)

// NormalizeSource canonicalises a requested source. A missing source or any
// source mentioning RAPL resolves to SourceRAPL.
// TODO: keep RAPL flavours apart once models exist for more than one of them.
func NormalizeSource(source *string) EnergySource {
	if source == nil || strings.Contains(*source, raplMarker) {
		return SourceRAPL
	}
	return EnergySource(*source)
}
