/*
auto-aim fuses a stream of armor-plate detections from an upstream
vision detector into a tracked model of a single enemy robot's motion,
and publishes a target snapshot and gimbal aim command each tick.

The tracking pipeline is:

	detections (external) -> internal/geometry association
	                       -> internal/ekf + internal/motion (9-state EKF)
	                       -> tracker (finite-state machine)
	                       -> internal/solver.Facade -> ballistic solver (external)

See package tracker for the state machine driving each tick, and
cmd/replay for a runnable harness over a recorded observation stream.
*/
package autoaim
