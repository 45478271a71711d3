// Package framework contains the low-level implementation of test harness infrastructure
// that can be reused for different kinds of tests.
//
// The general model is:
//
// 1. The test harness talks to a service under test, which exposes a status resource that is
// queried once at startup to make sure the service is up and to learn what it supports.
//
// 2. There is a general notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results.
//
// 3. Tests can be chained: a step produces a Dependency that later steps require. A step whose
// requirements were not produced is never invoked, and is reported as skipped.
//
// The domain-specific code that knows what is being tested is responsible for providing the
// requests to send, the expectations to check, and a domain-specific test API on top of the
// test context.
package framework
