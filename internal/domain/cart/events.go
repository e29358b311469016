package cart

// Activity payloads published after a confirmed cart mutation.

type ItemAddedToCart struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ItemRemovedFromCart struct {
	LineItemID string `json:"line_item_id"`
	ProductID  string `json:"product_id,omitempty"`
}

type ItemQuantityChanged struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
}

type CartCleared struct {
	ItemCount int `json:"item_count"`
}
