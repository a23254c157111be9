package model

import "time"

// Source names where a target item came from.
type Source string

const (
	SourceCSV   Source = "csv"
	SourceFetch Source = "fetch"
)

// Item is one device under consideration for deletion.
type Item struct {
	ID          string     `json:"id"` // serial number
	RemoteUUID  string     `json:"remoteUuid,omitempty"`
	HostName    string     `json:"hostName,omitempty"`
	LastCheckin *time.Time `json:"lastCheckin,omitempty"`
	Source      Source     `json:"source"`
	Selected    bool       `json:"selected"`
	State       State      `json:"state"`
	LastError   string     `json:"lastError,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// Computer is a device record returned by the fleet API.
type Computer struct {
	UUID     string `json:"uuid"`
	HostName string `json:"hostName"`
	Serial   string `json:"serial"`
	Checkin  string `json:"checkin"`
}

// CheckinTime parses Checkin, returning nil when it is empty or malformed.
func (c Computer) CheckinTime() *time.Time {
	if c.Checkin == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, c.Checkin); err == nil {
			return &t
		}
	}
	return nil
}

// Resolve copies the identity fields of a lookup match onto the item.
func (it *Item) Resolve(c Computer) {
	it.RemoteUUID = c.UUID
	if c.HostName != "" {
		it.HostName = c.HostName
	}
	if t := c.CheckinTime(); t != nil {
		it.LastCheckin = t
	}
}
