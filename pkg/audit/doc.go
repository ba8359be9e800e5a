// Package audit runs the three-lens forensic audit of a narrative: source
// reliability, atomic fact checking and logical structure.
package audit
