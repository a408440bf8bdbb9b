package history

import "github.com/nicktill/starcast/pkg/series"

// Update kinds
const (
	UpdateEntity    = "entity"
	UpdateAggregate = "aggregate"
	UpdateForecast  = "forecast"
)

// Update announces a finished series.
type Update struct {
	Type   string        `json:"type"`
	Label  string        `json:"label"`
	Points series.Series `json:"points"`
}

// Notifier receives updates as histories complete. Publish must not block.
type Notifier interface {
	Publish(u Update)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Update) {}
