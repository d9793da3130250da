package models

import "fmt"

// DeliveryResult is the outcome of sending one order to one endpoint.
type DeliveryResult struct {
	Endpoint string
	Status   int
	Attempts int
	Err      error
}

func (r DeliveryResult) OK() bool { return r.Err == nil && r.Status/100 == 2 }

func (r DeliveryResult) String() string {
	if r.OK() {
		return fmt.Sprintf("%s: http %d after %d attempt(s)", r.Endpoint, r.Status, r.Attempts)
	}
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", r.Endpoint, r.Attempts, r.Err)
}

// AnyDelivered reports whether at least one endpoint accepted the order.
func AnyDelivered(results []DeliveryResult) bool {
	for _, r := range results {
		if r.OK() {
			return true
		}
	}
	return false
}
