// Package dependency models parent/child instance trees as an arena of nodes
// addressed by id.
//
// Containers and bases may declare child slots filled by other instances of
// the same kind. The orchestrator loads such a tree into a Graph to order
// child operations by sequence and to apply the upgrade priority rule: an
// instance is not reinstalled while a higher priority upgrade is pending on
// its parent chain's siblings (with their subtrees). Upgrades pending below
// the instance count as its own.
//
// Parents are referenced by id only. Validate reports unknown parents and
// parent cycles before the graph is walked.
package dependency
