package interfaces

// StatusNotifier receives human-readable progress messages during a run.
// It is an observability hook only: implementations may be slow, broken or
// panicky without affecting job processing — the orchestrator contains
// every failure raised here.
type StatusNotifier interface {
	OnStatus(message string)
}

// StatusFunc adapts a plain function to StatusNotifier.
type StatusFunc func(message string)

func (f StatusFunc) OnStatus(message string) { f(message) }
