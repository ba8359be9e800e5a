package live

// event is anything delivered to the bridge loop.
type event interface {
	isEvent()
}

// captureFrame carries one microphone frame in capture order.
type captureFrame struct {
	samples []float32
}

// serverEvent carries one inbound provider message in receipt order.
type serverEvent struct {
	msg *ServerMessage
}

// sessionEnded reports that Recv failed or the remote side closed.
type sessionEnded struct {
	err error
}

// playbackEnded reports a scheduled buffer finished on its own.
type playbackEnded struct {
	id uint64
}

// captureEnded reports that the microphone stopped delivering frames.
type captureEnded struct{}

// closeRequest asks the loop to shut down.
type closeRequest struct{}

func (captureFrame) isEvent()  {}
func (serverEvent) isEvent()   {}
func (sessionEnded) isEvent()  {}
func (playbackEnded) isEvent() {}
func (captureEnded) isEvent()  {}
func (closeRequest) isEvent()  {}
