package checkout

// PricedLine is one order line as priced at validation time.
type PricedLine struct {
	Quantity  int
	UnitPrice int
}

// Total computes an order total in cents. It is evaluated exactly once per
// checkout, from prices read under the ledger locks.
func Total(lines []PricedLine) int {
	total := 0
	for _, line := range lines {
		total += line.UnitPrice * line.Quantity
	}
	return total
}
