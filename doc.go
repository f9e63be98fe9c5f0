// Package ringmap implements a scalable epoch-based reclamation (SEBR)
// subsystem and a striped, resizing, treeifying concurrent hash table built
// on top of it, plus a classical Michael-Scott queue as a second client of
// the reclaimer.
//
// The reclamation half (Pin, Handle, Group, the handle list) never blocks a
// reader: a Pin stamps the caller's handle with the group's current epoch on
// entry and marks it as left on exit. Retired objects are freed once every
// handle's epoch has advanced past the epoch they were retired at. The hash
// table (Map) and the queue (Queue) are two independent clients of the same
// reclaimer; neither knows about the other.
package ringmap
