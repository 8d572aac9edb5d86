// Package strategy maps a layout class to the reconstruction treatment.
package strategy

import "github.com/local/contractedit/internal/analyzer"

// Tag is advisory; the renderer picks its CSS from it.
type Tag string

const (
	StandardExtraction       Tag = "standard_extraction"
	TableFocusedProcessing   Tag = "table_focused_processing"
	ColumnAwareProcessing    Tag = "column_aware_processing"
	FormPreservingProcessing Tag = "form_preserving_processing"
	HybridProcessing         Tag = "hybrid_processing"
)

// Select returns the tag for l. Unknown layouts get HybridProcessing and ok=false.
func Select(l analyzer.Layout) (tag Tag, ok bool) {
	switch l {
	case analyzer.Standard:
		return StandardExtraction, true
	case analyzer.TableHeavy:
		return TableFocusedProcessing, true
	case analyzer.MultiColumn:
		return ColumnAwareProcessing, true
	case analyzer.FormBased:
		return FormPreservingProcessing, true
	case analyzer.Hybrid:
		return HybridProcessing, true
	}
	return HybridProcessing, false
}
