package taxlot

import "fmt"

// Status is the outcome of an entry point.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // some records or events failed, the rest went through
	StatusFailure Status = "failure"
)

// Problem is one itemized failure reported by an entry point.
type Problem struct {
	Kind    ErrorKind `json:"kind"`
	Ref     string    `json:"ref,omitempty"` // record index or transaction ID
	Message string    `json:"message"`
}

// Result is the uniform envelope returned by every entry point of the Engine.
// Errors never cross this boundary: they are folded into Status, Kind and Message.
type Result[T any] struct {
	Status   Status    `json:"status"`
	Message  string    `json:"message"`
	Kind     ErrorKind `json:"kind,omitempty"`
	Data     T         `json:"data"`
	Problems []Problem `json:"problems,omitempty"`
}

// OK reports whether the operation was not a failure.
func (r Result[T]) OK() bool { return r.Status != StatusFailure }

// Succeed returns a success, or a partial success when problems were reported.
func Succeed[T any](data T, problems []Problem, format string, args ...any) Result[T] {
	r := Result[T]{Status: StatusSuccess, Data: data, Problems: problems, Message: fmt.Sprintf(format, args...)}
	if len(problems) > 0 {
		r.Status = StatusPartial
		r.Kind = problems[0].Kind
	}
	return r
}

// Fail returns a failure carrying the kind of err.
func Fail[T any](err error) Result[T] {
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindPersistence
	}
	return Result[T]{Status: StatusFailure, Kind: kind, Message: err.Error()}
}
