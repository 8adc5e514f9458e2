// Package orchestrator drives the lifecycle of containers and bases.
//
// Every entry point runs as one pass: a pass opens at most one remote
// session per server, carries the caller's Options and shares a single
// backup generation between every save it takes, including the saves taken
// by nested child operations.
//
// # Lifecycle
//
// Containers go through absent, deploying, deployed and removing. Bases add
// the installing, enabled and blocked states while deployed.
//
//   - Deploy: an instance with child slots creates and deploys its children
//     in ascending sequence and carries no runtime of its own. Otherwise the
//     pre_deploy hook runs, the runtime is provisioned with its ports,
//     volumes and links, post_deploy runs, the runtime is started and a
//     first save is taken.
//   - Purge: children are purged in descending sequence. A leaf instance is
//     always saved first, then stopped, pre_purge runs and the runtime is
//     removed.
//   - Update: a forced save, then the runtime is reinstalled. Bases hosted
//     on containers whose application sets updateBases are updated too.
//   - Reset: a base is restored from a fresh save of itself or of its reset
//     source, optionally into a new base.
//
// # Failure semantics
//
// Links and ports are resolved before any remote command, so a
// ResolutionError leaves nothing behind. An ExecutionError in the middle of
// a deploy leaves the partial runtime in place; the caller purges and
// deploys again.
//
// # Dispatch
//
// Do sends an action through the queue so that at most one action runs per
// instance. The typed methods (DeployContainer, PurgeBase, ...) run in the
// calling goroutine.
package orchestrator
