package framework

// TestLogger receives progress events as the run goes: every test is started, then either
// finished or skipped. TestError may be called any number of times between start and finish,
// once per recorded failure.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	// TestFinished carries the test's captured debug output, which the logger may print or drop.
	TestFinished(id TestID, failed bool, debugOutput CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (nullTestLogger) TestStarted(TestID)                        {}
func (nullTestLogger) TestError(TestID, error)                   {}
func (nullTestLogger) TestFinished(TestID, bool, CapturedOutput) {}
func (nullTestLogger) TestSkipped(TestID, string)                {}
