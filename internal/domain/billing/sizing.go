package billing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// bytesPerGiB is the divisor for the serialize-then-measure size convention.
var bytesPerGiB = decimal.NewFromInt(1 << 30)

// SizeInGiB serializes v to JSON and expresses its length in GiB. Size-valued
// fields (data transfer, bandwidth, storage) are measured this way for
// compatibility with the historical rate configuration: the rate is priced
// against the canonical JSON encoding of whatever crossed the boundary.
// Returns zero when v cannot be serialized.
func SizeInGiB(v any) decimal.Decimal {
	raw, err := json.Marshal(v)
	if err != nil {
		return decimal.Zero
	}
	return BytesInGiB(len(raw))
}

// BytesInGiB converts a raw byte count into the GiB size unit.
func BytesInGiB(n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n)).Div(bytesPerGiB)
}
