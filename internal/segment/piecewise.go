package segment

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// FitOptions controls the breakpoint regression.
type FitOptions struct {
	Breakpoints int
	// Restarts is the number of bootstrap restarts tried after the first refinement.
	Restarts int
	Seed     uint64
	// MaxIterations and Tolerance bound each iterative refinement run.
	MaxIterations int
	Tolerance     float64
	// MinDistance and EdgeDistance are fractions of the x range that breakpoints keep from
	// each other and from the ends of the data.
	MinDistance  float64
	EdgeDistance float64
}

// DefaultFitOptions returns the options used when nothing is configured.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Breakpoints:   7,
		Restarts:      20,
		Seed:          42,
		MaxIterations: 30,
		Tolerance:     1e-5,
		MinDistance:   0.01,
		EdgeDistance:  0.02,
	}
}

// Estimate is a fitted parameter with its standard error and 95% confidence interval.
type Estimate struct {
	Value  float64 `json:"estimate"`
	StdErr float64 `json:"se"`
	Low    float64 `json:"ci_low"`
	High   float64 `json:"ci_high"`
}

// Model is a fitted continuous piecewise-linear function
//
//	y = c + alpha1*x + sum_k beta_k * max(x - psi_k, 0)
//
// It is immutable once returned by Fit.
type Model struct {
	Key   string `json:"key"`
	Year  int    `json:"year"`
	Scale string `json:"scale"`

	Breakpoints []float64 `json:"breakpoints"` // sorted
	Intercept   float64   `json:"intercept"`
	// Alphas holds the slope of each segment, len(Breakpoints)+1 entries.
	Alphas []float64 `json:"alphas"`
	// Betas holds the slope change at each breakpoint.
	Betas []float64 `json:"betas"`

	InterceptEstimate   Estimate   `json:"intercept_estimate"`
	AlphaEstimates      []Estimate `json:"alpha_estimates"`
	BetaEstimates       []Estimate `json:"beta_estimates"`
	BreakpointEstimates []Estimate `json:"breakpoint_estimates"`

	RSS       float64 `json:"rss"`
	RSquared  float64 `json:"r_squared"`
	BIC       float64 `json:"bic"`
	N         int     `json:"n"`
	XMin      float64 `json:"x_min"`
	XMax      float64 `json:"x_max"`
	Converged bool    `json:"converged"`
	// Iterations counts refinement steps of the accepted solution.
	Iterations int       `json:"iterations"`
	FittedAt   time.Time `json:"fitted_at"`
}

// Predict evaluates the fitted function at x.
func (m *Model) Predict(x float64) float64 {
	y := m.Intercept
	if len(m.Alphas) > 0 {
		y += m.Alphas[0] * x
	}
	for k, psi := range m.Breakpoints {
		if x > psi {
			y += m.Betas[k] * (x - psi)
		}
	}
	return y
}

// Fit estimates a continuous piecewise-linear regression of y on x with opts.Breakpoints
// breakpoints. Pairs with a NaN coordinate are ignored.
//
// Breakpoints are initialised by a coordinate-descent search over the observed x values and
// refined with Muggeo's iterative linearisation. Bootstrap restarts are then used to escape
// local minima. Inputs that cannot support the requested number of breakpoints, and fits where
// no refinement converges, fail with *domain.DegenerateFitError.
func Fit(x, y []float64, opts FitOptions) (*Model, error) {
	if len(x) != len(y) {
		return nil, &domain.MalformedInputError{Field: "x", Reason: fmt.Sprintf("length %d does not match y length %d", len(x), len(y))}
	}
	k := opts.Breakpoints
	if k < 1 {
		return nil, &domain.DegenerateFitError{Reason: fmt.Sprintf("breakpoint count %d must be positive", k)}
	}

	xs, ys := finitePairs(x, y)
	n := len(xs)
	if n < 2*k+2 {
		return nil, &domain.DegenerateFitError{Reason: fmt.Sprintf("%d samples for %d breakpoints, need %d", n, k, 2*k+2)}
	}
	distinct := distinctSorted(xs)
	if len(distinct) < k+2 {
		return nil, &domain.DegenerateFitError{Reason: fmt.Sprintf("%d distinct x values for %d breakpoints, need %d", len(distinct), k, k+2)}
	}
	xmin, xmax := distinct[0], distinct[len(distinct)-1]
	span := xmax - xmin
	if span <= 0 {
		return nil, &domain.DegenerateFitError{Reason: "x range is zero"}
	}

	p := problem{
		x: xs, y: ys, k: k,
		xmin: xmin, xmax: xmax,
		minGap:  opts.MinDistance * span,
		edgeGap: opts.EdgeDistance * span,
		maxIter: opts.MaxIterations,
		tol:     opts.Tolerance,
	}

	best, ok := p.profileSearch(distinct)
	if !ok {
		return nil, &domain.DegenerateFitError{Reason: "no valid breakpoint configuration"}
	}

	if refined, ok := p.refine(p.x, p.y, best.psi); ok && refined.rss <= best.rss {
		best = refined
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	bx := make([]float64, n)
	by := make([]float64, n)
	for range opts.Restarts {
		for i := range n {
			j := rng.IntN(n)
			bx[i], by[i] = p.x[j], p.y[j]
		}
		start, ok := p.refine(bx, by, best.psi)
		if !ok {
			continue
		}
		if cand, ok := p.refine(p.x, p.y, start.psi); ok && cand.rss < best.rss {
			best = cand
		}
	}

	if !best.converged {
		return nil, &domain.DegenerateFitError{Reason: "breakpoint refinement did not converge"}
	}
	return p.model(best)
}

// solution is a breakpoint configuration and the RSS of the hinge regression at it.
type solution struct {
	psi       []float64
	rss       float64
	converged bool
	iter      int
}

type problem struct {
	x, y       []float64
	k          int
	xmin, xmax float64
	minGap     float64
	edgeGap    float64
	maxIter    int
	tol        float64
}

// valid reports whether sorted breakpoints respect the edge and spacing constraints.
func (p *problem) valid(psi []float64) bool {
	for i, v := range psi {
		if v < p.xmin+p.edgeGap || v > p.xmax-p.edgeGap {
			return false
		}
		if i > 0 && v-psi[i-1] < p.minGap {
			return false
		}
		if i > 0 && v <= psi[i-1] {
			return false
		}
	}
	return true
}

// profileSearch places the breakpoints on observed x values by coordinate descent: each
// breakpoint in turn is moved to the candidate minimising the RSS with the others held fixed,
// until a sweep brings no improvement.
func (p *problem) profileSearch(distinct []float64) (solution, bool) {
	var cands []float64
	for _, v := range distinct {
		if v >= p.xmin+p.edgeGap && v <= p.xmax-p.edgeGap && v > p.xmin && v < p.xmax {
			cands = append(cands, v)
		}
	}
	if len(cands) < p.k {
		return solution{}, false
	}

	psi := make([]float64, p.k)
	for j := range psi {
		psi[j] = cands[(j+1)*(len(cands)-1)/(p.k+1)]
	}
	if !p.valid(psi) {
		psi = p.greedySpread(cands)
		if psi == nil {
			return solution{}, false
		}
	}
	rss, ok := hingeRSS(p.x, p.y, psi)
	if !ok {
		return solution{}, false
	}

	trial := make([]float64, p.k)
	for sweep := 0; sweep < 2*p.k+10; sweep++ {
		improved := false
		for j := range psi {
			for _, c := range cands {
				if c == psi[j] {
					continue
				}
				copy(trial, psi)
				trial[j] = c
				sort.Float64s(trial)
				if !p.valid(trial) {
					continue
				}
				if r, ok := hingeRSS(p.x, p.y, trial); ok && r < rss*(1-1e-12) {
					rss = r
					copy(psi, trial)
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return solution{psi: psi, rss: rss}, true
}

// greedySpread picks k candidates left to right honouring the spacing constraint.
func (p *problem) greedySpread(cands []float64) []float64 {
	psi := make([]float64, 0, p.k)
	for _, c := range cands {
		if len(psi) == 0 || c-psi[len(psi)-1] >= p.minGap {
			psi = append(psi, c)
			if len(psi) == p.k {
				return psi
			}
		}
	}
	return nil
}

// refine runs Muggeo's iteration on (x, y) from psi0. Each step regresses y on
// [1, x, U_k, V_k] with U_k = max(x-psi_k, 0) and V_k = -1{x > psi_k} and moves each breakpoint
// by gamma_k/beta_k. ok is false when the iteration leaves the valid region, hits a singular
// design, or does not converge within maxIter steps.
func (p *problem) refine(x, y, psi0 []float64) (solution, bool) {
	psi := append([]float64(nil), psi0...)
	k := p.k
	for iter := 1; iter <= p.maxIter; iter++ {
		coef, ok := leastSquares(muggeoDesign(x, psi), y)
		if !ok {
			return solution{}, false
		}
		next := make([]float64, k)
		step := 0.0
		for j := range k {
			beta := coef[2+j]
			gamma := coef[2+k+j]
			if beta == 0 || math.IsNaN(beta) {
				return solution{}, false
			}
			next[j] = psi[j] + gamma/beta
			step = math.Max(step, math.Abs(next[j]-psi[j]))
		}
		sort.Float64s(next)
		if !p.valid(next) {
			return solution{}, false
		}
		psi = next
		if step < p.tol {
			rss, ok := hingeRSS(p.x, p.y, psi)
			if !ok {
				return solution{}, false
			}
			return solution{psi: psi, rss: rss, converged: true, iter: iter}, true
		}
	}
	return solution{}, false
}

// model computes the final coefficients and statistics at the chosen breakpoints.
func (p *problem) model(s solution) (*Model, error) {
	n, k := len(p.x), p.k
	coef, ok := leastSquares(hingeDesign(p.x, s.psi), p.y)
	if !ok {
		return nil, &domain.DegenerateFitError{Reason: "singular design at fitted breakpoints"}
	}

	m := &Model{
		Breakpoints: append([]float64(nil), s.psi...),
		Intercept:   coef[0],
		Alphas:      make([]float64, k+1),
		Betas:       make([]float64, k),
		N:           n,
		XMin:        p.xmin,
		XMax:        p.xmax,
		Converged:   s.converged,
		Iterations:  s.iter,
	}
	m.Alphas[0] = coef[1]
	for j := range k {
		m.Betas[j] = coef[2+j]
		m.Alphas[j+1] = m.Alphas[j] + coef[2+j]
	}

	var rss, tss float64
	mean := 0.0
	for _, v := range p.y {
		mean += v
	}
	mean /= float64(n)
	for i, xv := range p.x {
		r := p.y[i] - m.Predict(xv)
		rss += r * r
		d := p.y[i] - mean
		tss += d * d
	}
	m.RSS = rss
	switch {
	case tss > 0:
		m.RSquared = 1 - rss/tss
	case rss == 0:
		m.RSquared = 1
	}
	params := 2 + 2*k
	m.BIC = float64(n)*math.Log(rss/float64(n)) + float64(params)*math.Log(float64(n))

	m.InterceptEstimate, m.AlphaEstimates, m.BetaEstimates, m.BreakpointEstimates = p.estimates(m, params)
	return m, nil
}

// estimates derives standard errors from the Muggeo design evaluated at the final breakpoints.
// Breakpoint errors use the delta method, se(psi) = se(gamma)/|beta|.
func (p *problem) estimates(m *Model, params int) (Estimate, []Estimate, []Estimate, []Estimate) {
	n, k := len(p.x), p.k
	alphas := make([]Estimate, k+1)
	betas := make([]Estimate, k)
	psis := make([]Estimate, k)
	intercept := Estimate{Value: m.Intercept, StdErr: math.NaN(), Low: math.NaN(), High: math.NaN()}
	for i := range alphas {
		alphas[i] = Estimate{Value: m.Alphas[i], StdErr: math.NaN(), Low: math.NaN(), High: math.NaN()}
	}
	for j := range k {
		betas[j] = Estimate{Value: m.Betas[j], StdErr: math.NaN(), Low: math.NaN(), High: math.NaN()}
		psis[j] = Estimate{Value: m.Breakpoints[j], StdErr: math.NaN(), Low: math.NaN(), High: math.NaN()}
	}

	dof := n - params
	if dof <= 0 {
		return intercept, alphas, betas, psis
	}
	cov, ok := covariance(muggeoDesign(p.x, m.Breakpoints), m.RSS/float64(dof))
	if !ok {
		return intercept, alphas, betas, psis
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(0.975)
	withCI := func(e *Estimate, se float64) {
		e.StdErr = se
		e.Low = e.Value - t*se
		e.High = e.Value + t*se
	}

	withCI(&intercept, math.Sqrt(cov.At(0, 0)))
	for i := range alphas {
		// alpha_i = alpha_1 + sum_{j<i} beta_j
		idx := []int{1}
		for j := range i {
			idx = append(idx, 2+j)
		}
		v := 0.0
		for _, a := range idx {
			for _, b := range idx {
				v += cov.At(a, b)
			}
		}
		withCI(&alphas[i], math.Sqrt(v))
	}
	for j := range k {
		withCI(&betas[j], math.Sqrt(cov.At(2+j, 2+j)))
		withCI(&psis[j], math.Sqrt(cov.At(2+k+j, 2+k+j))/math.Abs(m.Betas[j]))
	}
	return intercept, alphas, betas, psis
}

func hingeDesign(x, psi []float64) *mat.Dense {
	cols := 2 + len(psi)
	d := mat.NewDense(len(x), cols, nil)
	for i, xv := range x {
		d.Set(i, 0, 1)
		d.Set(i, 1, xv)
		for j, b := range psi {
			d.Set(i, 2+j, math.Max(xv-b, 0))
		}
	}
	return d
}

func muggeoDesign(x, psi []float64) *mat.Dense {
	k := len(psi)
	d := mat.NewDense(len(x), 2+2*k, nil)
	for i, xv := range x {
		d.Set(i, 0, 1)
		d.Set(i, 1, xv)
		for j, b := range psi {
			d.Set(i, 2+j, math.Max(xv-b, 0))
			if xv > b {
				d.Set(i, 2+k+j, -1)
			}
		}
	}
	return d
}

// leastSquares solves min ||Xb - y|| with a QR factorisation.
func leastSquares(X *mat.Dense, y []float64) ([]float64, bool) {
	r, c := X.Dims()
	if r < c {
		return nil, false
	}
	var qr mat.QR
	qr.Factorize(X)
	var b mat.VecDense
	if err := qr.SolveVecTo(&b, false, mat.NewVecDense(len(y), y)); err != nil {
		return nil, false
	}
	out := make([]float64, c)
	for i := range out {
		out[i] = b.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, false
		}
	}
	return out, true
}

func hingeRSS(x, y, psi []float64) (float64, bool) {
	X := hingeDesign(x, psi)
	coef, ok := leastSquares(X, y)
	if !ok {
		return 0, false
	}
	var rss float64
	for i := range y {
		fit := 0.0
		for j, c := range coef {
			fit += X.At(i, j) * c
		}
		d := y[i] - fit
		rss += d * d
	}
	return rss, true
}

// covariance returns sigma2 * (X'X)^-1.
func covariance(X *mat.Dense, sigma2 float64) (*mat.Dense, bool) {
	_, c := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, false
	}
	cov := mat.NewDense(c, c, nil)
	cov.Scale(sigma2, &inv)
	return cov, true
}

func finitePairs(x, y []float64) ([]float64, []float64) {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}

func distinctSorted(x []float64) []float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}
