// Package dupes finds orders placed by the same customer, matched by phone
// number, inside a lookback window and remediates them by tagging, noting and
// optionally canceling the order selected for review.
//
// The package owns no I/O. Orders are read through an OrderDirectory and
// changed through an OrderMutator; the same pipeline serves batch scans and
// single order-creation events.
package dupes
