// Package reconcile decides, for every source clip on a timeline, whether a
// proxy must be rendered, can be relinked from disk, or is already fine.
//
// Collect turns editor track items into Clips. A Reconciler then runs the
// handlers in a fixed order (orphans, already linked, offline, existing
// unlinked, collisions, final confirmation), prompting through a Prompter
// where the operator has to choose. The result is a Plan whose Jobs are the
// clips that still need an encode.
package reconcile
