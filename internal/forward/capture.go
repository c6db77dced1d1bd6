package forward

import "analytics/internal/models"

// captureRequest is the collector's single-event capture body.
type captureRequest struct {
	APIKey     string            `json:"api_key"`
	Event      string            `json:"event"`
	DistinctID string            `json:"distinct_id"`
	Properties captureProperties `json:"properties"`
	Timestamp  string            `json:"timestamp"`
}

// captureProperties flattens the optional event fields. Absent values are
// sent as null rather than omitted.
type captureProperties struct {
	CurrentURL *string          `json:"$current_url"`
	Mode       *models.ViewMode `json:"mode"`
	DocSlug    *string          `json:"docSlug"`
	SectionID  *string          `json:"sectionId"`
	NodeID     *string          `json:"nodeId"`
	Value      *float64         `json:"value"`
	Metadata   models.Metadata  `json:"metadata"`
	Ts         string           `json:"ts"`
	Lib        string           `json:"$lib"`
	LibVersion string           `json:"$lib_version,omitempty"`
}

func (c *Client) capture(event *models.EventPayload, referer string) captureRequest {
	var currentURL *string
	if referer != "" {
		currentURL = &referer
	}

	return captureRequest{
		APIKey:     c.apiKey,
		Event:      string(event.EventName),
		DistinctID: event.DistinctID(),
		Properties: captureProperties{
			CurrentURL: currentURL,
			Mode:       event.Mode,
			DocSlug:    event.DocSlug,
			SectionID:  event.SectionID,
			NodeID:     event.NodeID,
			Value:      event.Value,
			Metadata:   event.Metadata,
			Ts:         event.Timestamp,
			Lib:        libName,
			LibVersion: c.libVersion,
		},
		Timestamp: event.Timestamp,
	}
}
