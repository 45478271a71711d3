// Package dpctests contains the end-to-end test suite for the export API.
//
// The suite walks through the life cycle of an attribution roster: it submits an organization,
// its practitioners and patients, builds a roster, exports the roster's claims data in bulk and
// verifies every file of the export, and finally deletes what it created. Each step is a named
// test whose result is passed on to the steps that need it.
package dpctests
