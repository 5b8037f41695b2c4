// Package model implements the live parameter tree.
//
// # Tree Hierarchy
//
// A Device owns a tree of named Nodes rooted at "/". Any node may carry one
// Parameter holding a typed, constrained, observable Value:
//
//	Device (synth)
//	└── /
//	    ├── osc1
//	    │   ├── freq      (float, [20, 20000], clip)
//	    │   └── wave      (string, {sine, saw, square})
//	    └── master
//	        └── gain      (float, [0, 1], fold)
//
// # Handles
//
// Nodes live in an arena owned by the Device. A Node is a small value
// handle (arena index plus generation) and is safe to copy. Removing a node
// bumps the generation of its slot, so handles held elsewhere report
// Valid() == false instead of pointing at a recycled node.
//
// # Addressing
//
// Addresses are "/"-joined paths from the root. Names are unique among
// siblings and may not contain "/", whitespace, or the OSC pattern
// characters "*?[]{},#". Pattern lookups accept OSC address patterns:
//
//	*        any run of characters within one segment
//	?        one character
//	[a-c]    character class, [!..] negated
//	{a,b}    alternatives
//
// # Notifications
//
// Parameter subscribers run synchronously on the goroutine that pushed the
// value, in registration order. Tree notifications (NodeCreated,
// ParameterDeleting, NodeRemoving) run on the goroutine that performs the
// mutation. For a removal, ParameterDeleting fires before NodeRemoving and
// both fire while the node is still reachable. Callbacks must not change
// the tree structure themselves.
//
// # Protocols
//
// A Protocol translates wire traffic into tree writes (Host.Inbound) and
// parameter changes into wire traffic (Protocol.Push). Every propagation
// carries a Pass recording which protocols already saw the value, so a
// value never travels back into the protocol it came from.
package model
