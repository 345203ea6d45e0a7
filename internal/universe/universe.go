// Package universe builds and maintains the factor-based correlation
// structure across the simulated equity universe, and exposes the
// Cholesky factor used to draw correlated tick innovations.
package universe

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ndrandal/market-data-engine/internal/market"
	"github.com/ndrandal/market-data-engine/internal/rng"
)

// ErrCorrelationNotPD is returned when a correlation matrix fails to
// factorize, i.e. it is not symmetric positive definite.
var ErrCorrelationNotPD = errors.New("universe: correlation matrix is not positive definite")

const (
	betaLo, betaHi           = 0.55, 0.8
	regionLo, regionHi       = 0.35, 0.6
	sectorLo, sectorHi       = 0.4, 0.7
	idiosyncraticLo, idioHi  = 0.05, 0.12
	jitterLo, jitterHi       = 0.08, 0.15
	refreshWeightOld         = 0.8
	refreshWeightNew         = 0.2
)

// Universe holds the fixed set of equities and the mutable correlation
// structure derived from them. The Cholesky factor is read far more often
// than it is written (once per tick vs. once per refresh interval), so
// access is guarded by an RWMutex.
type Universe struct {
	mu          sync.RWMutex
	equities    []market.Equity
	correlation *mat.SymDense
	cholesky    *mat.TriDense
}

// New builds a universe for the given equities, drawing an initial
// factor-based correlation matrix from rng.
func New(equities []market.Equity, r *rng.RNG) (*Universe, error) {
	corr := factorBasedCorrelation(equities, r)
	chol, err := computeCholesky(corr)
	if err != nil {
		return nil, err
	}
	return &Universe{
		equities:    equities,
		correlation: corr,
		cholesky:    chol,
	}, nil
}

// Equities returns the fixed equity set backing this universe.
func (u *Universe) Equities() []market.Equity {
	return u.equities
}

// Cholesky returns a copy of the current lower-triangular Cholesky factor.
// Callers get their own copy so they can read it outside the lock while a
// concurrent refresh swaps the underlying matrix.
func (u *Universe) Cholesky() *mat.TriDense {
	u.mu.RLock()
	defer u.mu.RUnlock()
	n, _ := u.cholesky.Dims()
	clone := mat.NewTriDense(n, mat.Lower, nil)
	clone.Copy(u.cholesky)
	return clone
}

// Refresh blends the current correlation matrix with a freshly drawn one
// (80% old / 20% new), renormalizes to unit diagonal, and recomputes the
// Cholesky factor. It leaves the universe unchanged if the blended matrix
// is not positive definite.
func (u *Universe) Refresh(r *rng.RNG) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	candidate := factorBasedCorrelation(u.equities, r)
	n, _ := u.correlation.Dims()
	blended := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := refreshWeightOld*u.correlation.At(i, j) + refreshWeightNew*candidate.At(i, j)
			blended.SetSym(i, j, v)
		}
	}
	renormalized := renormalize(blended)

	chol, err := computeCholesky(renormalized)
	if err != nil {
		return err
	}
	u.correlation = renormalized
	u.cholesky = chol
	return nil
}

// Rebuild discards the current correlation structure and draws a fresh one.
func (u *Universe) Rebuild(r *rng.RNG) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	corr := factorBasedCorrelation(u.equities, r)
	chol, err := computeCholesky(corr)
	if err != nil {
		return err
	}
	u.correlation = corr
	u.cholesky = chol
	return nil
}

// correlationMatrix returns the current correlation matrix, for tests only.
func (u *Universe) correlationMatrix() *mat.SymDense {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.correlation
}

// factorBasedCorrelation builds a covariance matrix from a feature matrix
// of (global beta, region one-hot, sector one-hot, idiosyncratic) loadings
// plus diagonal jitter, then renormalizes it to a unit-diagonal correlation
// matrix.
func factorBasedCorrelation(equities []market.Equity, r *rng.RNG) *mat.SymDense {
	n := len(equities)
	baseColumns := 1 + market.RegionCount + market.SectorCount
	totalColumns := baseColumns + 1

	featureData := make([]float64, n*totalColumns)
	for i, eq := range equities {
		row := featureData[i*totalColumns : (i+1)*totalColumns]
		row[0] = r.Range(betaLo, betaHi)

		regionOffset := 1 + eq.Region.Index()
		row[regionOffset] = r.Range(regionLo, regionHi)

		sectorOffset := 1 + market.RegionCount + eq.Sector.Index()
		row[sectorOffset] = r.Range(sectorLo, sectorHi)

		idiosyncraticOffset := baseColumns
		row[idiosyncraticOffset] = r.Range(idiosyncraticLo, idioHi)
	}

	featureMatrix := mat.NewDense(n, totalColumns, featureData)
	var covariance mat.Dense
	covariance.Mul(featureMatrix, featureMatrix.T())

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, covariance.At(i, j))
		}
	}
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, sym.At(i, i)+r.Range(jitterLo, jitterHi))
	}

	return renormalize(sym)
}

// renormalize rescales a symmetric matrix so its diagonal is exactly 1,
// dividing each off-diagonal entry by the geometric mean of its row/column
// variances.
func renormalize(m *mat.SymDense) *mat.SymDense {
	n, _ := m.Dims()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		v := m.At(i, i)
		if v < math.SmallestNonzeroFloat64 {
			v = math.SmallestNonzeroFloat64
		}
		diag[i] = math.Sqrt(v)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				out.SetSym(i, i, 1.0)
				continue
			}
			out.SetSym(i, j, m.At(i, j)/(diag[i]*diag[j]))
		}
	}
	return out
}

// computeCholesky factorizes a correlation matrix, returning
// ErrCorrelationNotPD if it is not symmetric positive definite.
func computeCholesky(m *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, fmt.Errorf("%w", ErrCorrelationNotPD)
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}
