package walkforward

import "math"

// compositeLoss is MSE between predictions and standardized true targets
// plus lambda times a directional binary cross-entropy term. The
// directional term compares, across the asset axis, the sign of
// pred[j] - true[j-1] against the sign of true[j] - true[j-1]: predicted
// values are differenced against the true neighboring slice, not against
// other predictions. That asymmetry is part of the training contract and
// is kept as-is.
//
// Returns the scalar loss and its gradient w.r.t. each prediction.
func compositeLoss(preds, trues [][]float64, lambda float64) (float64, [][]float64) {
	b := len(preds)
	a := len(preds[0])

	grads := make([][]float64, b)
	for i := range grads {
		grads[i] = make([]float64, a)
	}

	var mse float64
	n := float64(b * a)
	for i := range preds {
		for j := range preds[i] {
			d := preds[i][j] - trues[i][j]
			mse += d * d / n
			grads[i][j] = 2 * d / n
		}
	}

	if lambda == 0 || a < 2 {
		return mse, grads
	}

	var bce float64
	m := float64(b * (a - 1))
	for i := 0; i < b; i++ {
		for j := 1; j < a; j++ {
			logit := preds[i][j] - trues[i][j-1]
			label := 0.0
			if trues[i][j]-trues[i][j-1] > 0 {
				label = 1
			}
			bce += bceWithLogits(logit, label) / m
			grads[i][j] += lambda * (sigmoid(logit) - label) / m
		}
	}

	return mse + lambda*bce, grads
}

// bceWithLogits is the numerically stable binary cross-entropy:
// max(x,0) - x*z + log(1+exp(-|x|)).
func bceWithLogits(x, z float64) float64 {
	return math.Max(x, 0) - x*z + math.Log1p(math.Exp(-math.Abs(x)))
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
