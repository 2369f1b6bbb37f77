package activitypub

const TypeOrderedCollection = "OrderedCollection"

type OrderedCollection struct {
	Context      string   `json:"@context"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []string `json:"orderedItems"`
}

func NewOrderedCollection(id string, items []string) *OrderedCollection {
	if items == nil {
		items = []string{}
	}
	return &OrderedCollection{
		Context:      ActivityStreamsContext,
		ID:           id,
		Type:         TypeOrderedCollection,
		TotalItems:   len(items),
		OrderedItems: items,
	}
}
