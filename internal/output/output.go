// Package output defines the event records emitted by a job run. The
// sequence of events is an ordered transcript and is the only artifact
// crossing the execution core's output boundary.
package output

type Type string

const (
	TypeData        Type = "data"
	TypeExit        Type = "exit"
	TypeContainer   Type = "container"
	TypeExposedPort Type = "exposedPort"
)

type Event struct {
	Type Type
	Data string
}

func Data(data string) Event {
	return Event{Type: TypeData, Data: data}
}

func Exit(data string) Event {
	return Event{Type: TypeExit, Data: data}
}

func Container(data string) Event {
	return Event{Type: TypeContainer, Data: data}
}

func ExposedPort(data string) Event {
	return Event{Type: TypeExposedPort, Data: data}
}
