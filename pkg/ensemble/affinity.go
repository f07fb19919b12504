package ensemble

import (
	"github.com/HatiCode/escolta/pkg/models"
	"github.com/HatiCode/escolta/pkg/regime"
)

// MinRegimeConfidence is the label confidence below which the regime is ignored.
const MinRegimeConfidence = 0.5

// affinities scales a forecaster's skill by how well its family suits a regime.
// Families missing from a row, and the external family, stay at 1.0.
var affinities = map[regime.Regime]map[models.Family]float64{
	regime.Stable: {
		models.FamilyDecomposition:  1.0,
		models.FamilyTrend:          0.8,
		models.FamilyAutoregressive: 1.1,
	},
	regime.LinearGrowth: {
		models.FamilyDecomposition:  1.1,
		models.FamilyTrend:          1.2,
		models.FamilyAutoregressive: 0.9,
	},
	regime.ExponentialGrowth: {
		models.FamilyDecomposition:  0.9,
		models.FamilyTrend:          1.3,
		models.FamilyAutoregressive: 0.8,
	},
	regime.Decelerating: {
		models.FamilyDecomposition:  1.2,
		models.FamilyTrend:          0.7,
		models.FamilyAutoregressive: 1.0,
	},
	regime.Decline: {
		models.FamilyDecomposition:  1.0,
		models.FamilyTrend:          1.1,
		models.FamilyAutoregressive: 1.0,
	},
}

// Affinity returns the regime multiplier for a forecaster family. It is 1.0
// when the label is indeterminate or not confident enough to act on.
func Affinity(label regime.Label, family models.Family) float64 {
	if label.Regime == regime.Indeterminate || label.Confidence < MinRegimeConfidence {
		return 1.0
	}
	if a, ok := affinities[label.Regime][family]; ok {
		return a
	}
	return 1.0
}
