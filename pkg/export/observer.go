package export

import "time"

// Result is a finished export.
type Result struct {
	JobID   string
	Frames  int
	Data    []byte
	Workers int
	Elapsed time.Duration
}

// Observer receives export events. Calls come from the goroutine running
// Export.
type Observer interface {
	Progress(done, total int)
	Complete(res Result)
	Error(err error)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	OnProgress func(done, total int)
	OnComplete func(res Result)
	OnError    func(err error)
}

func (o ObserverFuncs) Progress(done, total int) {
	if o.OnProgress != nil {
		o.OnProgress(done, total)
	}
}

func (o ObserverFuncs) Complete(res Result) {
	if o.OnComplete != nil {
		o.OnComplete(res)
	}
}

func (o ObserverFuncs) Error(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}
