// Package interlock enforces equipment dependency chains: when an
// upstream (an egg belt, say) stops, every dependent downstream (the
// feeder augers riding on it) is stopped, and blocked equipment may
// not start again until its prerequisites run.
//
// The engine tracks each upstream's last observed running state. On
// every data-refresh pass it reads the tracked upstreams, issues stop
// commands for true→false transitions (exactly one per dependent), and
// republishes the permission cache as a whole new map behind an atomic
// pointer. CanStart reads that pointer only, so controllers asking
// "may this start?" never wait on the refresh loop.
//
// Unknown equipment and a not-yet-published cache both answer Allowed:
// the interlock protects against cascading damage, and a cold start
// with no information must not deadlock the house.
package interlock
