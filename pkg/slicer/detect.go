package slicer

import "strings"

// DetectWindow is how many leading bytes Detect inspects.
const DetectWindow = 10000

var signatures = []struct {
	kind    Kind
	markers []string
}{
	// SuperSlicer and OrcaSlicer descend from PrusaSlicer and may mention
	// it, so they are checked first.
	{SuperSlicer, []string{"generated by superslicer"}},
	{OrcaSlicer, []string{"generated by orcaslicer", "; orcaslicer", "generated by bambustudio"}},
	{PrusaSlicer, []string{"generated by prusaslicer", "generated by slic3r prusa edition"}},
	{KiriMoto, []string{"kiri:moto", "kirimoto"}},
	{Cura, []string{";generated with cura_steamengine", ";flavor:"}},
}

// Detect guesses the slicer that produced a file from its first bytes.
// Files without a known signature are Generic.
func Detect(header string) Kind {
	if len(header) > DetectWindow {
		header = header[:DetectWindow]
	}
	lower := strings.ToLower(header)
	for _, sig := range signatures {
		for _, m := range sig.markers {
			if strings.Contains(lower, m) {
				return sig.kind
			}
		}
	}
	return Generic
}
