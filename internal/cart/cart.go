// Package cart defines the domain types shared by the cart stores, the remote
// cart client and the synchronization manager.
package cart

// Product is a denormalized snapshot of product attributes cached at the time
// the line was created or last refreshed. It may be stale relative to the
// authoritative backend; the stock availability checker is the only component
// allowed to treat a stock figure as current.
type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int32  `json:"stock"`
	Category string `json:"category,omitempty"`
}

// Line is one product-quantity pairing within a cart.
// A stored line always has Quantity >= 1; a quantity dropping to zero means
// the line is deleted, never stored as zero.
type Line struct {
	ProductID int64   `json:"productId"`
	Quantity  int32   `json:"quantity"`
	Product   Product `json:"product"`
}

// SyncItem is the minimal line representation sent on sign-in migration.
// Cached product snapshots are deliberately not transmitted.
type SyncItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

// TotalItems returns the sum of all line quantities.
func TotalItems(lines []Line) int32 {
	var total int32
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice returns the sum of price*quantity across lines.
// A missing cached price counts as zero.
func TotalPrice(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.Product.Price * int64(l.Quantity)
	}
	return total
}

// FindLine returns the index of the line for productID, or -1 if absent.
func FindLine(lines []Line, productID int64) int {
	for i := range lines {
		if lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// SyncItems projects lines down to their (productId, quantity) pairs.
func SyncItems(lines []Line) []SyncItem {
	items := make([]SyncItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, SyncItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}
