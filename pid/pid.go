// Package pid implements a scalar PID controller, grounded on the
// original tracker's pid_update helper.
package pid

// Controller is a standard proportional-integral-derivative loop: Update
// accumulates the error integral and derivative internally between calls.
type Controller struct {
	Kp, Ki, Kd float64

	integration float64
	lastErr     float64
}

// New returns a zeroed Controller with the given gains.
func New(kp, ki, kd float64) *Controller {
	return &Controller{Kp: kp, Ki: ki, Kd: kd}
}

// Update folds in one error sample over dt and returns the controller
// output: Kp*err + Ki*integration*dt + Kd*(err-lastErr)/dt.
func (c *Controller) Update(err, dt float64) float64 {
	der := err - c.lastErr
	c.integration += err
	var output float64
	if dt != 0 {
		output = c.Kp*err + c.Ki*c.integration*dt + c.Kd*der/dt
	} else {
		output = c.Kp*err + c.Ki*c.integration
	}
	c.lastErr = err
	return output
}

// Reset clears the accumulated integral and last error.
func (c *Controller) Reset() {
	c.integration = 0
	c.lastErr = 0
}
