package convo

import (
	"encoding/json"
	"fmt"

	"gorod-bot/internal/repo"
)

// Draft is the in-flight conversation payload persisted as the user's
// temp_data. It is a tagged union: Flow names the active service and only
// the matching variant is populated. An empty Draft accompanies the idle
// state.
type Draft struct {
	Flow     repo.ServiceType `json:"flow,omitempty"`
	Cafe     *CafeDraft       `json:"cafe,omitempty"`
	Shop     *ShopDraft       `json:"shop,omitempty"`
	Pharmacy *PharmacyDraft   `json:"pharmacy,omitempty"`
	Taxi     *TaxiDraft       `json:"taxi,omitempty"`
	Porter   *PorterDraft     `json:"porter,omitempty"`
}

// CafeDraft collects a cafe order before submission.
type CafeDraft struct {
	Items   string `json:"items,omitempty"`
	Address string `json:"address,omitempty"`
}

// ShopDraft collects a shopping list order before submission.
type ShopDraft struct {
	List    string `json:"list,omitempty"`
	Address string `json:"address,omitempty"`
}

// PharmacyDraft tracks a pharmacy request through bid and confirmation.
type PharmacyDraft struct {
	Rx       string `json:"rx,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Address  string `json:"address,omitempty"`

	// Set when a pharmacy bid is forwarded for confirmation.
	OrderID    string `json:"order_id,omitempty"`
	ProviderID int64  `json:"provider_id,omitempty"`
	Price      int64  `json:"price,omitempty"`
}

// TaxiDraft collects a taxi route and price.
type TaxiDraft struct {
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	SuggestedPrice int64  `json:"suggested_price,omitempty"`
	Price          int64  `json:"price,omitempty"`
}

// PorterDraft collects a cargo transport request.
type PorterDraft struct {
	Cargo string `json:"cargo,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Empty reports whether the draft carries no flow.
func (d Draft) Empty() bool {
	return d.Flow == ""
}

// Marshal serialises the draft for storage.
func (d Draft) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	return data, nil
}

// UnmarshalDraft parses stored temp_data. Corrupted payloads yield an
// empty draft so the conversation fails closed to the menu instead of
// erroring forever.
func UnmarshalDraft(data []byte) Draft {
	if len(data) == 0 {
		return Draft{}
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}
	}
	return d
}
