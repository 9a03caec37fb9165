// Package rule defines the predicate expression tree evaluated by the
// rollout engine for every compliance decision.
//
// A rule is a tagged-variant tree of Node values: leaf nodes compare a single
// request attribute (equals, in, not_in, prefix) and interior nodes combine
// children with all/any/not. The tree is interpreted by a small, pure
// matcher with no I/O, which keeps evaluation fast on the request hot path
// and makes rules safely replayable by the impact simulator against
// historical attribute sets.
//
// Rules are declared in YAML:
//
//	kind: all
//	children:
//	  - kind: not_in
//	    attribute: jurisdiction
//	    values: [EU, UK, CH]
//	  - kind: equals
//	    attribute: business_function
//	    value: payments
//
// Validate rejects malformed trees up front so Match never has to report
// structural errors during evaluation.
package rule
