/*
Package types defines the core data structures shared across supvisors:
node/process/application identity, the placement and failure-handling
strategy enums, and the per-application/per-process rules that drive the
starter, stopper, and failure handler.

# Architecture

types is the foundation of the domain model. It defines:

  - Node, process, and application states (the vocabulary every other
    package uses to describe cluster state)
  - Placement, starting-failure, running-failure, and conciliation
    strategies
  - ApplicationRules and ProcessRules, the declarative configuration that
    pkg/config loads and pkg/starter/pkg/stopper/pkg/failurehandler consume

# Thread Safety

Types in this package carry no synchronization of their own; pkg/state is
the sole owner of mutable instances and is responsible for guarding
concurrent access.
*/
package types
