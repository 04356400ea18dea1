package notifier

// TextNotifier is a minimal outbound text channel. Components depend on this
// interface so the concrete transport (Telegram) stays swappable; when
// notification is disabled a Noop stands in, decided once at startup.
type TextNotifier interface {
	SendText(text string) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
