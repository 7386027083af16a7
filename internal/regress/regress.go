// Package regress provides the numeric routines behind the ensemble
// strategies: non-negative least squares with an optional ridge penalty,
// closed-form ridge regression, k-fold cross-validated RMSE, and a small
// regression random forest.
//
// The non-negativity constraint is enforced with projected coordinate
// descent rather than post-hoc clipping, and the closed-form ridge solver
// operates on centered data so the intercept is recovered exactly.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	cdMaxIter = 1000
	cdTol     = 1e-9
)

// LinearModel is a fitted linear regression with per-column weights and an
// intercept. Weights are non-negative when fitted through FitNNLS.
type LinearModel struct {
	Weights   []float64
	Intercept float64
}

// Predict returns intercept + dot(weights, x).
func (m *LinearModel) Predict(x []float64) float64 {
	return m.Intercept + floats.Dot(m.Weights, x)
}

// FitNNLS fits y ~ X with non-negative weights and an unconstrained,
// unpenalized intercept, minimizing ||Xw + b - y||^2 + alpha*||w||^2
// subject to w >= 0. alpha = 0 gives constrained ordinary least squares.
//
// The solver is projected coordinate descent over the weights plus the
// intercept as a final free coordinate, all starting from zero. Weights are
// swept before the intercept, so a degenerate corpus (a constant column that
// alone explains the targets) credits the column rather than the intercept.
func FitNNLS(x [][]float64, y []float64, alpha float64) (*LinearModel, error) {
	n, k, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		return nil, fmt.Errorf("alpha must be non-negative, got %f", alpha)
	}

	// Gram matrix and target correlations over the design matrix augmented
	// with the intercept column of ones. The ridge penalty lands on the
	// weight diagonal only, never on the intercept.
	m := k + 1
	gram := make([][]float64, m)
	corr := make([]float64, m)
	for j := 0; j < m; j++ {
		gram[j] = make([]float64, m)
	}
	col := func(i, j int) float64 {
		if j == k {
			return 1
		}
		return x[i][j]
	}
	for j := 0; j < m; j++ {
		for l := j; l < m; l++ {
			var s float64
			for i := 0; i < n; i++ {
				s += col(i, j) * col(i, l)
			}
			gram[j][l] = s
			gram[l][j] = s
		}
		for i := 0; i < n; i++ {
			corr[j] += col(i, j) * y[i]
		}
	}
	for j := 0; j < k; j++ {
		gram[j][j] += alpha
	}

	w := make([]float64, m)
	for iter := 0; iter < cdMaxIter; iter++ {
		var maxDelta float64
		for j := 0; j < m; j++ {
			if gram[j][j] == 0 {
				w[j] = 0
				continue
			}
			grad := corr[j]
			for l := 0; l < m; l++ {
				if l != j {
					grad -= gram[j][l] * w[l]
				}
			}
			next := grad / gram[j][j]
			if j < k && next < 0 {
				next = 0
			}
			if d := math.Abs(next - w[j]); d > maxDelta {
				maxDelta = d
			}
			w[j] = next
		}
		if maxDelta < cdTol {
			break
		}
	}

	return &LinearModel{Weights: w[:k], Intercept: w[k]}, nil
}

// FitRidge fits an unconstrained ridge regression in closed form by solving
// the centered normal equations (X'X + alpha*I) w = X'y with a Cholesky
// factorization.
func FitRidge(x [][]float64, y []float64, alpha float64) (*LinearModel, error) {
	n, k, err := checkShape(x, y)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		return nil, fmt.Errorf("alpha must be non-negative, got %f", alpha)
	}

	xc, yc, xMean, yMean := center(x, y)

	xd := mat.NewDense(n, k, nil)
	for i := range xc {
		xd.SetRow(i, xc[i])
	}
	var gram mat.SymDense
	gram.SymOuterK(1, xd.T())
	for j := 0; j < k; j++ {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}

	rhs := mat.NewVecDense(k, nil)
	rhs.MulVec(xd.T(), mat.NewVecDense(n, yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		// Degenerate design matrix; nudge the diagonal until it factors.
		for j := 0; j < k; j++ {
			gram.SetSym(j, j, gram.At(j, j)+1e-8)
		}
		if ok := chol.Factorize(&gram); !ok {
			return nil, fmt.Errorf("normal equations are not positive definite")
		}
	}

	sol := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(sol, rhs); err != nil {
		return nil, fmt.Errorf("solve ridge system: %w", err)
	}

	w := make([]float64, k)
	for j := 0; j < k; j++ {
		w[j] = sol.AtVec(j)
	}
	intercept := yMean - floats.Dot(w, xMean)
	return &LinearModel{Weights: w, Intercept: intercept}, nil
}

// RMSE returns the root mean squared error between predictions and targets.
func RMSE(pred, y []float64) float64 {
	if len(pred) == 0 || len(pred) != len(y) {
		return math.NaN()
	}
	var s float64
	for i := range pred {
		d := pred[i] - y[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(pred)))
}

// MAE returns the mean absolute error between predictions and targets.
func MAE(pred, y []float64) float64 {
	if len(pred) == 0 || len(pred) != len(y) {
		return math.NaN()
	}
	var s float64
	for i := range pred {
		s += math.Abs(pred[i] - y[i])
	}
	return s / float64(len(pred))
}

// CrossValRMSE estimates generalization error with contiguous k-fold
// cross-validation: the fit function is trained on each fold's complement
// and scored on the held-out fold, and the per-fold MSEs are averaged
// before taking the root.
func CrossValRMSE(x [][]float64, y []float64, folds int, fit func([][]float64, []float64) (*LinearModel, error)) (float64, error) {
	n := len(x)
	if folds < 2 {
		return 0, fmt.Errorf("need at least 2 folds, got %d", folds)
	}
	if n < folds {
		return 0, fmt.Errorf("need at least %d samples for %d folds, got %d", folds, folds, n)
	}

	var mseSum float64
	foldSize := n / folds
	remainder := n % folds
	start := 0
	for f := 0; f < folds; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		end := start + size

		trainX := make([][]float64, 0, n-size)
		trainY := make([]float64, 0, n-size)
		trainX = append(trainX, x[:start]...)
		trainX = append(trainX, x[end:]...)
		trainY = append(trainY, y[:start]...)
		trainY = append(trainY, y[end:]...)

		model, err := fit(trainX, trainY)
		if err != nil {
			return 0, fmt.Errorf("fold %d: %w", f, err)
		}

		var foldSE float64
		for i := start; i < end; i++ {
			d := model.Predict(x[i]) - y[i]
			foldSE += d * d
		}
		mseSum += foldSE / float64(size)
		start = end
	}

	return math.Sqrt(mseSum / float64(folds)), nil
}

func checkShape(x [][]float64, y []float64) (n, k int, err error) {
	n = len(x)
	if n == 0 {
		return 0, 0, fmt.Errorf("empty design matrix")
	}
	if len(y) != n {
		return 0, 0, fmt.Errorf("design matrix has %d rows but %d targets", n, len(y))
	}
	k = len(x[0])
	if k == 0 {
		return 0, 0, fmt.Errorf("design matrix has no columns")
	}
	for i, row := range x {
		if len(row) != k {
			return 0, 0, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), k)
		}
	}
	return n, k, nil
}

func center(x [][]float64, y []float64) (xc [][]float64, yc []float64, xMean []float64, yMean float64) {
	n := len(x)
	k := len(x[0])

	xMean = make([]float64, k)
	for _, row := range x {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean = floats.Sum(y) / float64(n)

	xc = make([][]float64, n)
	yc = make([]float64, n)
	for i := range x {
		xc[i] = make([]float64, k)
		floats.SubTo(xc[i], x[i], xMean)
		yc[i] = y[i] - yMean
	}
	return xc, yc, xMean, yMean
}
