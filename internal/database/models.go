package database

import "time"

// CallStatus código persistido en calls.status
type CallStatus int

const (
	StatusQueued  CallStatus = 0
	StatusSuccess CallStatus = 1
	StatusFailed  CallStatus = 2
)

func (s CallStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Campaign representa una campaña masiva de llamadas
type Campaign struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	AudioURL      string     `db:"audio_url" json:"audio_url"`
	SendStartTime *time.Time `db:"send_start_time" json:"send_start_time"`
	SendEndTime   *time.Time `db:"send_end_time" json:"send_end_time"`
}

// Call representa el registro de una llamada de campaña
type Call struct {
	ID         int64      `db:"id" json:"id"`
	CampaignID int64      `db:"campaign_id" json:"campaign_id"`
	Number     string     `db:"number" json:"number"`
	Status     CallStatus `db:"status" json:"status"`
	CallID     string     `db:"call_id" json:"call_id"`
	UniqueID   string     `db:"uniqueid" json:"uniqueid"`
	StartTime  *time.Time `db:"start_time" json:"start_time"`
	EndTime    *time.Time `db:"end_time" json:"end_time"`
}

// CampaignSummary conteo de llamadas por estado
type CampaignSummary struct {
	Campaign Campaign       `json:"campaign"`
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}
