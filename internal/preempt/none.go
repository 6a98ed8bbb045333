package preempt

// NoneTransport implements wire.None: no preemption is ever requested.
// Every task runs to completion once dispatched.
type NoneTransport struct{}

// NewNoneTransport returns a transport that never fires.
func NewNoneTransport() *NoneTransport { return &NoneTransport{} }

func (NoneTransport) Arm(worker int, deadlineNanos int64) {}
func (NoneTransport) Fire(worker int) error { return nil }
func (NoneTransport) InstallHandler(worker int, yield func()) {}
