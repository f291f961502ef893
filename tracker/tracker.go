package tracker

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/ovrtrack/posekf/kalman/ekf"
	"github.com/ovrtrack/posekf/lightbatch"
	"github.com/ovrtrack/posekf/measurement"
	"github.com/ovrtrack/posekf/state"
	"github.com/ovrtrack/posekf/variance"
)

// lateMeasurementWindow is the spec's fixed 100ms back-dating window (spec
// section 4.4.1/5: "if incoming observation timestamp lies within 100 ms
// in the past, clamp to filter time; if older, drop").
const lateMeasurementWindow = 0.1

// lateIMUWindow bounds how far in the past an IMU sample may lag before
// being dropped (spec section 4.6).
const lateIMUWindow = 0.01

// divergencePositionBound is the per-axis position magnitude beyond which
// the tracker is considered diverged (spec section 4.6, scenario 5).
const divergencePositionBound = 20.0

// Report is one filtered pose/velocity sample handed to the reporter
// callbacks (spec section 6).
type Report struct {
	Time            float64
	Position        [3]float64
	Orientation     [4]float64
	LinearVelocity  [3]float64
	AngularVelocity [3]float64
}

// Tracker is the pose-tracking orchestrator (spec component C7): it owns
// the EKF, the four measurement models, the light batcher and the
// variance/divergence trackers, and exposes the integrate_* surface spec
// section 6 describes.
type Tracker struct {
	Config Config
	Stats  *Stats

	OnPose     func(Report)
	OnVelocity func(Report)

	layout   state.Layout
	ekf      *ekf.IEKF
	initDiag []float64

	poseModel  *measurement.PoseModel
	lightModel *measurement.LightModel
	imuModel   *measurement.IMUModel
	zvuModel   *measurement.ZVUModel

	batcher *lightbatch.Batcher

	lightVariance *variance.StationaryTracker
	imuVariance   *variance.StationaryTracker
	lightResidualEMA *variance.RollingEMA

	phase Phase

	lastReportTime float64
	haveReported   bool

	lastIMUTime    float64
	haveIMU        bool
	lastGyroActive float64
	stationarySince float64
	haveSeenLight  bool
	lastLightTime  float64
}

// New returns a Tracker wired from cfg, with a LightModel bound to proj
// and lookup (spec non-goal: the symbolic light projection and base
// station/sensor calibration are external collaborators).
func New(cfg Config, proj measurement.LightProjector, lookup measurement.SensorLookup) *Tracker {
	layout := cfg.layout()

	poseModel := measurement.NewPoseModel(layout, cfg.ObsAxisAngle)
	poseModel.ObsCovScale = cfg.ObsCovScale
	poseModel.ObsPosVar = cfg.ObsPosVariance
	poseModel.ObsRotVar = cfg.ObsRotVariance

	lightModel := measurement.NewLightModel(layout, proj, lookup)
	lightModel.ObsCovScale = cfg.ObsCovScale
	if cfg.LightVariance > 0 {
		lightModel.LightVar = cfg.LightVariance
	}
	lightModel.RampInLength = cfg.LightRampIn
	lightModel.MaxError = cfg.LightcapMaxError
	lightModel.Config.MaxIterations = cfg.LightIteratedMaxIterations

	imuModel := measurement.NewIMUModel(layout)
	imuModel.AccVar = cfg.IMUAccVariance
	imuModel.GyroVar = cfg.IMUGyroVariance
	imuModel.AccNormPenalty = cfg.IMUAccNormPenalty

	zvuModel := measurement.NewZVUModel(layout)
	zvuModel.VarMoving = cfg.ZVUMoving
	zvuModel.VarStationary = cfg.ZVUStationary
	zvuModel.VarNoLight = cfg.ZVUNoLight

	initDiag := buildInitDiag(layout, cfg)
	e, err := ekf.New(layout, cfg.UseErrorSpace, initDiag)
	if err != nil {
		panic(err)
	}
	e.ProcWeights = cfg.ProcessWeights
	e.NoiseModel = cfg.NoiseModel
	e.PredictWeights = state.PredictWeights{
		UseAcc: cfg.ProcessWeights.Acc != 0 || layout.Enabled[state.LinearAcceleration],
		UseVel: true,
	}

	t := &Tracker{
		Config:     cfg,
		Stats:      NewStats(),
		layout:     layout,
		ekf:        ekf.NewIEKF(e),
		initDiag:   initDiag,
		poseModel:  poseModel,
		lightModel: lightModel,
		imuModel:   imuModel,
		zvuModel:   zvuModel,
		batcher:    lightbatch.New(cfg.LightBatchSize, cfg.LightCapacity),
		lightVariance: variance.NewStationaryTracker(1, nil),
		imuVariance:   variance.NewStationaryTracker(6, nil),
		lightResidualEMA: variance.NewRollingEMA(0.1),
		phase:      Uninitialised,
	}
	t.lightVariance.Stationary = t.isStationary
	t.imuVariance.Stationary = t.isStationary
	return t
}

// buildInitDiag seeds P's diagonal per spec section 3's lifecycle: a
// large base variance everywhere, +10 extra on the pose block, and extra
// on IMUCorrection/AccScale when their init-variance overrides are set.
func buildInitDiag(l state.Layout, cfg Config) []float64 {
	dim := l.Dim
	if cfg.UseErrorSpace {
		dim = l.ErrorDim
	}
	diag := make([]float64, dim)
	const base = 1e3
	for i := range diag {
		diag[i] = base
	}

	offset := func(g state.Group) int {
		if cfg.UseErrorSpace {
			return l.ErrorOffset(g)
		}
		return l.Offset(g)
	}
	dims := func(g state.Group) int {
		if cfg.UseErrorSpace {
			return state.ErrorDims(g)
		}
		return state.Dims(g)
	}

	posOff, posN := offset(state.Position), dims(state.Position)
	for i := 0; i < posN; i++ {
		diag[posOff+i] += 10
	}
	rotOff, rotN := offset(state.Orientation), dims(state.Orientation)
	for i := 0; i < rotN; i++ {
		diag[rotOff+i] += 10
	}

	if l.Enabled[state.IMUCorrection] && cfg.InitVarIMUCorrection > 0 {
		off, n := offset(state.IMUCorrection), dims(state.IMUCorrection)
		for i := 0; i < n; i++ {
			diag[off+i] = cfg.InitVarIMUCorrection
		}
	}
	if l.Enabled[state.AccScale] && cfg.InitVarAccScale > 0 {
		off, n := offset(state.AccScale), dims(state.AccScale)
		for i := 0; i < n; i++ {
			diag[off+i] = cfg.InitVarAccScale
		}
	}
	return diag
}

// Phase returns the tracker's current lifecycle state.
func (t *Tracker) Phase() Phase { return t.phase }

// isStationary reports whether the object has been at rest (gyro norm
// under StationaryGyroNorm) for at least StationaryTime seconds as of t
// (spec supplement #2, grounded on the original's stationary-time
// heuristic against an exported per-axis activity counter).
func (t *Tracker) isStationary(tNow float64) bool {
	if !t.haveIMU {
		return false
	}
	if t.lastGyroActive == 0 {
		return false
	}
	return tNow-t.stationarySince >= t.Config.StationaryTime
}

func (t *Tracker) zvuContextVar() float64 {
	switch t.zvuModel.Context {
	case measurement.ZVUStationary:
		return t.zvuModel.VarStationary
	case measurement.ZVUNoLight:
		return t.zvuModel.VarNoLight
	default:
		return t.zvuModel.VarMoving
	}
}

func vecNorm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// positionVarianceNormSq returns ||diag(P)[0:posDim]||^2, the gate spec
// section 4.4.2 and 4.6 both key admission/reporting off of.
func (t *Tracker) positionVarianceNormSq() float64 {
	cov := t.ekf.Cov()
	off := 0
	if t.Config.UseErrorSpace {
		off = t.layout.ErrorOffset(state.Position)
	} else {
		off = t.layout.Offset(state.Position)
	}
	n := state.Dims(state.Position)
	if t.Config.UseErrorSpace {
		n = state.ErrorDims(state.Position)
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := cov.At(off+i, off+i)
		sum += v * v
	}
	return sum
}

// checkDivergence implements spec section 4.6's reset condition: rolling
// light residual over threshold while not stationary, or any position
// component beyond the fixed bound.
func (t *Tracker) checkDivergence(tNow float64) {
	if t.Config.LightErrorThreshold > 0 && !t.isStationary(tNow) {
		if t.lightResidualEMA.Value() > t.Config.LightErrorThreshold {
			t.enterReset()
			return
		}
	}
	pos := t.ekf.State().Position()
	for _, v := range pos {
		if math.Abs(v) > divergencePositionBound {
			t.enterReset()
			return
		}
	}
}

// maybeReport emits a report if min_report_time has elapsed and validity
// gates pass (spec section 4.6).
func (t *Tracker) maybeReport(tNow float64) {
	if t.phase != Running && t.phase != Warmup {
		return
	}
	if t.haveReported && tNow-t.lastReportTime < t.Config.effectiveMinReportTime() {
		return
	}
	if t.Stats.ReportsEmitted < t.Config.ReportIgnoreStart {
		t.Stats.ReportsEmitted++
		return
	}

	x := t.ekf.Extrapolate(tNow)
	if t.positionVarianceNormSq() > t.Config.ReportThresholdVar*t.Config.ReportThresholdVar {
		t.Stats.ReportsSuppressed++
		return
	}

	q := x.Orientation()
	rep := Report{
		Time:            tNow,
		Position:        x.Position(),
		Orientation:     [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		LinearVelocity:  x.LinearVelocity(),
		AngularVelocity: x.AngularVelocity(),
	}
	if t.OnPose != nil {
		t.OnPose(rep)
	}
	if t.OnVelocity != nil {
		t.OnVelocity(rep)
	}
	t.lastReportTime = tNow
	t.haveReported = true
	t.Stats.ReportsEmitted++
}

// clampOrDrop implements the spec's shared back-dating rule: a timestamp
// up to 100ms in the past is clamped to the filter's current time;
// anything older is dropped.
func (t *Tracker) clampOrDrop(ts float64) (clamped float64, ok bool) {
	now := t.ekf.Time()
	if ts >= now {
		return ts, true
	}
	if now-ts <= lateMeasurementWindow {
		return now, true
	}
	return 0, false
}

// IntegrateIMU feeds one accelerometer+gyroscope sample (spec section 6:
// integrate_imu).
func (t *Tracker) IntegrateIMU(ts float64, accel, gyro [3]float64) {
	if t.phase == Uninitialised || ts == 0 {
		t.Stats.UninitDropped++
		return
	}
	if t.Stats.ObsCount < t.Config.ObsCountColdStart {
		t.Stats.ColdStartDropped++
		return
	}

	clamped, ok := t.clampOrDrop(ts)
	if !ok || t.ekf.Time()-ts > lateIMUWindow {
		t.Stats.LateIMUDropped++
		return
	}

	t.haveIMU = true
	gnorm := vecNorm(gyro)
	if gnorm > t.Config.StationaryGyroNorm {
		t.stationarySince = ts
		t.lastGyroActive = 0
	} else if t.lastGyroActive == 0 {
		t.lastGyroActive = ts
		t.stationarySince = ts
	}
	t.lastIMUTime = ts

	if err := t.ekf.PredictTo(clamped); err != nil {
		t.Stats.NumericalFailures++
		return
	}

	corrected := t.imuModel.CorrectAccel(t.ekf.State(), accel)
	t.imuModel.SetRawAccel(accel)
	z := mat.NewVecDense(6, []float64{
		corrected[0], corrected[1], corrected[2],
		gyro[0], gyro[1], gyro[2],
	})
	r := t.imuModel.BuildR()
	if _, err := t.ekf.UpdateIterated(t.imuModel, z, r, t.imuModel.Config.MaxIterations, 1e-10); err != nil {
		t.Stats.NumericalFailures++
	}

	noLight := !t.haveSeenLight || ts-t.lastLightTime > 1.0
	switch {
	case t.isStationary(ts):
		t.zvuModel.Context = measurement.ZVUStationary
	case noLight:
		t.zvuModel.Context = measurement.ZVUNoLight
	default:
		t.zvuModel.Context = measurement.ZVUMoving
	}
	// negative configured variance disables ZVU for that context (spec
	// section 6's "kalman-zvu-moving" default of -1).
	if t.zvuContextVar() > 0 {
		zz := mat.NewVecDense(t.zvuModel.Dim(), nil)
		rr := t.zvuModel.BuildR()
		if err := t.ekf.Update(t.zvuModel, zz, rr); err != nil {
			t.Stats.NumericalFailures++
		}
	}

	t.checkDivergence(ts)
	t.maybeReport(ts)
}

// IntegrateLightSample feeds one light-sweep sample into the tracker's own
// batcher (spec component C6), flushing into IntegrateLight once the
// batch fills, a SYNC sample arrives, or the ring hits capacity (spec
// section 4.5).
func (t *Tracker) IntegrateLightSample(ts float64, sample measurement.LightSample, isSync bool) {
	capacityReached := t.batcher.Add(sample)
	if capacityReached || t.batcher.ShouldFlush(isSync) {
		t.IntegrateLight(ts, t.batcher.Flush())
	}
}

// IntegrateLight feeds one already-assembled light-sweep sample batch
// directly (spec section 6: integrate_light, spec section 4.5). Most
// callers should use IntegrateLightSample instead and let the tracker's
// own batcher decide when to flush.
func (t *Tracker) IntegrateLight(ts float64, samples []measurement.LightSample) {
	if t.phase == Uninitialised {
		t.Stats.UninitDropped++
		return
	}
	if !measurement.Admit(t.positionVarianceNormSq(), t.Config.LightThresholdVar, t.Stats.ObsCount, t.Config.LightRequiredObs) {
		return
	}

	clamped, ok := t.clampOrDrop(ts)
	if !ok {
		t.Stats.LateLightDropped++
		return
	}

	if err := t.ekf.PredictTo(clamped); err != nil {
		t.Stats.NumericalFailures++
		return
	}

	t.lightModel.SetBatch(samples)
	if t.lightModel.Dim() == 0 {
		return
	}
	z := t.lightModel.Predict(t.ekf.State())
	for i, s := range samples {
		if i >= z.Len() {
			break
		}
		z.SetVec(i, s.Value)
	}
	r := t.lightModel.BuildR()
	stats, err := t.ekf.UpdateIterated(t.lightModel, z, r, t.lightModel.Config.MaxIterations, 1e-9)
	if err != nil {
		t.Stats.NumericalFailures++
		return
	}
	_ = stats

	resid := t.ekf.Innovation()
	var sumSq float64
	for i := 0; i < resid.Len(); i++ {
		sumSq += resid.AtVec(i) * resid.AtVec(i)
	}
	residMag := math.Sqrt(sumSq)
	t.lightResidualEMA.Add(residMag)
	for _, s := range samples {
		t.Stats.recordLightResidual(s.LighthouseID, residMag)
	}

	t.haveSeenLight = true
	t.lastLightTime = ts
	t.checkDivergence(ts)
	t.maybeReport(ts)
}

// IntegrateObservation feeds a pre-solved pose observation (spec section
// 6: integrate_observation).
func (t *Tracker) IntegrateObservation(ts float64, pos [3]float64, q [4]float64, r *mat.SymDense) {
	clamped, ok := t.clampOrDrop(ts)
	if !ok {
		t.Stats.LateLightDropped++
		return
	}

	if t.phase == Uninitialised || t.phase == Reset {
		t.ekf.SetTime(clamped)
	} else if err := t.ekf.PredictTo(clamped); err != nil {
		t.Stats.NumericalFailures++
		return
	}

	qn := quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
	obs := mat.NewVecDense(7, []float64{pos[0], pos[1], pos[2], qn.Real, qn.Imag, qn.Jmag, qn.Kmag})

	var provided mat.Symmetric
	if r != nil {
		provided = r
	}
	rSym := t.poseModel.BuildR(provided)

	var z *mat.VecDense
	if t.Config.ObsAxisAngle {
		t.poseModel.SetObservation(obs)
		z = t.poseModel.Residual(t.ekf.State(), obs)
	} else {
		z = obs
	}

	if err := t.ekf.Update(t.poseModel, z, rSym); err != nil {
		t.Stats.NumericalFailures++
		t.poseModel.Failures++
		return
	}

	t.Stats.ObsCount++
	t.advanceOnPoseObs()
	t.checkDivergence(clamped)
	t.maybeReport(clamped)
}
