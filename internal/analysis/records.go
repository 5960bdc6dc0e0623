package analysis

import (
	"tokenwatch/internal/model"

	"github.com/tidwall/gjson"
)

// UIAmountPath locates the human-readable token amount inside a Solana
// jsonParsed token account entry.
const UIAmountPath = "account.data.parsed.info.tokenAmount.uiAmount"

// ExtractPrices pulls the token amount out of each record, keeping order.
// Records without a numeric amount at UIAmountPath are skipped; the number
// skipped is returned alongside.
func ExtractPrices(records []model.RawRecord) (model.PriceSeries, int) {
	out := make(model.PriceSeries, 0, len(records))
	skipped := 0
	for _, rec := range records {
		v := gjson.GetBytes(rec, UIAmountPath)
		if v.Type != gjson.Number {
			// uiAmount may also arrive as a numeric string in some encodings
			if v.Type == gjson.String {
				if f := gjson.Parse(v.Str); f.Type == gjson.Number {
					out = append(out, f.Num)
					continue
				}
			}
			skipped++
			continue
		}
		out = append(out, v.Num)
	}
	return out, skipped
}
