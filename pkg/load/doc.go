/*
Package load implements the per-(node, zone) load hysteresis state machine.

Each pair is either Normal or Throttled. A node enters Throttled when its
user count reaches max-users-per-node and only returns to Normal at or
below recover-users-per-node. The band between the two thresholds is a
dead zone: no transition fires there, which is what prevents a node
hovering around a single threshold from flapping in and out of DNS.

	          userCount >= max
	 Normal ───────────────────▶ Throttled
	        ◀───────────────────
	          userCount <= recover
*/
package load
