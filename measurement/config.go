// Package measurement implements the four pluggable measurement models
// (spec component C5): pose observation (quaternion or axis-angle),
// optical light-sweep observation, IMU observation, and zero-velocity
// update. Each is configured independently and exposes the ekf.Model
// trait (Predict/Jacobian/Dim) the filter core needs.
package measurement

// JacobianMode names how a model computes its Jacobian. The models in this
// package do not read it, nor NumericStepSize: the ZVU Jacobian and the
// nominal quaternion pose Jacobian are always closed-form, every other
// Jacobian is always numeric with fd's default step, and no Debug
// comparison is made.
type JacobianMode int

const (
	// Analytical uses a hand-derived closed form where one exists.
	Analytical JacobianMode = iota
	// Numeric uses central-difference numerical differentiation
	// (gonum.org/v1/gonum/diff/fd), exactly as the EKF core's own
	// propagation Jacobian is computed.
	Numeric
	// Debug computes both and compares them, for development-time
	// verification that the analytical form matches the generated/numeric
	// one to within the spec's 1e-6 tolerance (spec section 9).
	Debug
)

// Config is the common per-model tuning every measurement model carries
// (spec section 4.4: "each has tunable {adaptive, max_iterations,
// jacobian_mode, numeric_step_size, error_state_model}").
type Config struct {
	Adaptive         bool
	MaxIterations    int
	JacobianMode     JacobianMode
	NumericStepSize  float64
	ErrorStateModel  bool
}

// DefaultConfig returns the non-iterated, analytical, non-adaptive
// default shared by most models.
func DefaultConfig() Config {
	return Config{
		MaxIterations:   1,
		JacobianMode:    Analytical,
		NumericStepSize: 1e-6,
	}
}
