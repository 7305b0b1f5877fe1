package grid

// Notifier surfaces save outcomes to the operator. Implementations decide
// presentation; the grid only reports.
type Notifier interface {
	Info(msg string)
	Failure(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Info(string)    {}
func (NopNotifier) Failure(string) {}
