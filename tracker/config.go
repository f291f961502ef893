// Package tracker implements the orchestrator (spec component C7): it
// owns the EKF, the four measurement models, the light batcher, the
// variance trackers and the reporting/divergence state machine, and
// exposes the sensor-front-end integration surface described in spec
// section 6.
package tracker

import (
	"github.com/ovrtrack/posekf/procnoise"
	"github.com/ovrtrack/posekf/state"
)

// Config is the full external configuration surface (spec section 6).
// Field names follow the hyphenated config keys the spec table lists,
// translated to Go identifiers; defaults are set by DefaultConfig.
type Config struct {
	LightErrorThreshold   float64
	MinReportTime         float64
	ReportIgnoreStart     int
	ReportThresholdVar    float64
	LightThresholdVar     float64
	LightRequiredObs      int
	LightcapMaxError      float64
	LightVariance         float64
	ObsCovScale           float64
	ObsPosVariance        float64
	ObsRotVariance        float64
	ObsAxisAngle          bool
	UseRawObs             bool
	MinimizeStateSpace    bool
	UseErrorSpace         bool
	NoiseModel            procnoise.NoiseModel
	ProcessWeights        procnoise.Weights

	IMUAccVariance    float64
	IMUGyroVariance   float64
	IMUAccNormPenalty float64

	ZVUMoving     float64
	ZVUStationary float64
	ZVUNoLight    float64

	LightBatchSize int
	LightCapacity  int
	LightRampIn    int

	// InitVarIMUCorrection/InitVarAccScale keep their state-space groups
	// enabled even when the cascade's process weight is zero (spec
	// supplement #1, "kalman-initial-imu-variance" / "kalman-initial-acc-
	// scale-variance").
	InitVarIMUCorrection float64
	InitVarAccScale      float64

	// ObsCountColdStart is the minimum accepted pose-observation count
	// below which IMU integration is dropped (spec section 4.6,
	// "obs_count < 16 ... dropped (cold-start)"); light admission uses
	// LightRequiredObs instead.
	ObsCountColdStart int
	// IMUFreq seeds MinReportTime's default of 1/imu_freq when
	// MinReportTime is left negative.
	IMUFreq float64

	// StationaryGyroNorm is the gyro-magnitude threshold below which the
	// object is considered momentarily at rest; StationaryTime is how
	// long that must hold before the stationary-gated trackers engage
	// (spec supplement #2).
	StationaryGyroNorm float64
	StationaryTime     float64

	LightIteratedMaxIterations int
}

// DefaultConfig returns the spec section 6 defaults.
func DefaultConfig() Config {
	return Config{
		LightErrorThreshold: -1,
		MinReportTime:       -1,
		ReportIgnoreStart:   0,
		ReportThresholdVar:  1e-1,
		LightThresholdVar:   1,
		LightRequiredObs:    16,
		LightcapMaxError:    -1,
		LightVariance:       -1,
		ObsCovScale:         1,
		ObsPosVariance:      1e-6,
		ObsRotVariance:      1e-7,
		ObsAxisAngle:        false,
		UseRawObs:           false,
		MinimizeStateSpace:  true,
		UseErrorSpace:       true,
		NoiseModel:          procnoise.Polynomial,
		ProcessWeights: procnoise.Weights{
			Jerk: 1874161, Acc: 0, Vel: 0, Pos: 0,
			Rotation: 0, AngVel: 60,
			AccBias: 0, GyroBias: 0,
		},
		IMUAccVariance:    1e-3,
		IMUGyroVariance:   3.05e-5,
		IMUAccNormPenalty: 0,
		ZVUMoving:         -1,
		ZVUStationary:     1e-2,
		ZVUNoLight:        1e-4,
		LightBatchSize:    32,
		LightCapacity:     64,
		LightRampIn:       5000,
		ObsCountColdStart: 16,
		IMUFreq:           1000,
		StationaryGyroNorm: 5e-3,
		StationaryTime:     0.5,
		LightIteratedMaxIterations: 10,
	}
}

// effectiveMinReportTime resolves MinReportTime's negative-means-derived
// convention.
func (c Config) effectiveMinReportTime() float64 {
	if c.MinReportTime >= 0 {
		return c.MinReportTime
	}
	if c.IMUFreq <= 0 {
		return 0
	}
	return 1.0 / c.IMUFreq
}

// layout resolves the state-space layout: the tail-truncation cascade
// when MinimizeStateSpace is set (spec supplement #1), or the untruncated
// 27/25-wide layout otherwise.
func (c Config) layout() state.Layout {
	if !c.MinimizeStateSpace {
		return state.FullLayout()
	}
	return state.ComputeLayout(state.Weights{
		GyroBias:             c.ProcessWeights.GyroBias,
		AccBias:              c.ProcessWeights.AccBias,
		LinearAcceleration:   c.ProcessWeights.Acc,
		Jerk:                 c.ProcessWeights.Jerk,
		AngularVelocity:      c.ProcessWeights.AngVel,
		LinearVelocity:       c.ProcessWeights.Vel,
		IMUCorrectionInitVar: c.InitVarIMUCorrection,
		AccScaleInitVar:      c.InitVarAccScale,
	})
}
