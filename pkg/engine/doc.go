/*
Package engine is the scheduler/driver. Each tick runs the pipeline in
order:

	fetch -> classify (health, load) -> compute desired -> reconcile -> notify

Ticks never overlap: the next fetch waits for the current reconcile to
finish, which is also what makes the load tracker safe without locks.
The engine moves Idle -> Running -> Idle per tick and reaches Stopped
only through context cancellation, letting an in-flight tick complete
first. A fleet fetch failure aborts only its own tick; everything
deeper is scoped per node, per record or per zone.
*/
package engine
