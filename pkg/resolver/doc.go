// Package resolver turns references in chat input into capability results.
//
// Two kinds of reference are recognised:
//
//	/create-issue title="Login broken" priority=3
//	tell me about @Blog Post Example and @Style Guide
//
// A /command runs the tool or prompt of that name with the key=value
// arguments coerced to the tool's schema. Each @mention is looked up by exact
// resource name, refreshing the session cache once on a miss, and then read.
// Mentions are resolved independently: one that fails is recorded in the
// Resolution and does not stop the others.
package resolver
