package panel

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notification is a message shown once to the user of a panel
type Notification struct {
	Level   Level  `json:"level"`
	Caption string `json:"caption"`
	Message string `json:"message,omitempty"`
}

// inbox queues notifications until the next view drains them
type inbox struct {
	items []Notification
}

func (b *inbox) info(caption string) {
	b.items = append(b.items, Notification{Level: LevelInfo, Caption: caption})
}

func (b *inbox) warn(err error) {
	b.items = append(b.items, Notification{Level: LevelWarning, Caption: "Error", Message: err.Error()})
}

func (b *inbox) drain() []Notification {
	items := b.items
	b.items = nil
	if items == nil {
		return []Notification{}
	}
	return items
}
