package workflow

// StatusCode classifies why an activity archived. 0 is success; positive
// values are either engine-reserved failure classes or user-defined ones.
type StatusCode int

const (
	StatusSuccess             StatusCode = 0
	StatusImportFailure       StatusCode = 1
	StatusInstantiationFailed StatusCode = 2
	StatusRuntimeFailure      StatusCode = 3
	StatusTimeout             StatusCode = 100
	StatusUncategorized       StatusCode = 255
)

// TerminalStateFor returns the archival state a Finish call with this
// status code produces: FINISHED for 0, FAILED otherwise.
func TerminalStateFor(code StatusCode) State {
	if code == StatusSuccess {
		return Finished
	}
	return Failed
}
