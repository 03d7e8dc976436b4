package walkforward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeLoss_PureMSE(t *testing.T) {
	preds := [][]float64{{1, 2}, {3, 4}}
	trues := [][]float64{{1, 2}, {3, 4}}

	loss, grads := compositeLoss(preds, trues, 0)
	assert.Equal(t, 0.0, loss)
	for _, g := range grads {
		for _, v := range g {
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestCompositeLoss_SingleAssetSkipsDirectionalTerm(t *testing.T) {
	preds := [][]float64{{1.5}}
	trues := [][]float64{{1.0}}

	withDir, _ := compositeLoss(preds, trues, 0.5)
	withoutDir, _ := compositeLoss(preds, trues, 0)
	assert.Equal(t, withoutDir, withDir)
}

func TestCompositeLoss_DirectionalTermIncreasesLoss(t *testing.T) {
	// true[1] > true[0], so the label is 1; a prediction far below true[0]
	// carries a large directional penalty
	preds := [][]float64{{0.0, -5.0}}
	trues := [][]float64{{0.0, 1.0}}

	mseOnly, _ := compositeLoss(preds, trues, 0)
	composite, _ := compositeLoss(preds, trues, 0.5)
	assert.Greater(t, composite, mseOnly)
}

func TestCompositeLoss_GradientMatchesNumericEstimate(t *testing.T) {
	preds := [][]float64{{0.3, -0.2, 0.7}, {-0.1, 0.4, 0.2}}
	trues := [][]float64{{0.1, 0.2, -0.3}, {0.0, -0.5, 0.6}}
	lambda := 0.4

	_, grads := compositeLoss(preds, trues, lambda)

	const h = 1e-6
	for i := range preds {
		for j := range preds[i] {
			orig := preds[i][j]
			preds[i][j] = orig + h
			up, _ := compositeLoss(preds, trues, lambda)
			preds[i][j] = orig - h
			down, _ := compositeLoss(preds, trues, lambda)
			preds[i][j] = orig

			numeric := (up - down) / (2 * h)
			require.InDelta(t, numeric, grads[i][j], 1e-6, "grad (%d,%d)", i, j)
		}
	}
}
