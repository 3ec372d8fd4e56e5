package purchase

// Outcome classifies a provider response. Ambiguous means the provider may or
// may not have processed the request (timeout, 5xx, unparseable body) and the
// purchase must be held for reconciliation, never refunded outright.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeDeclined  Outcome = "DECLINED"
	OutcomeAmbiguous Outcome = "AMBIGUOUS"
)

type ProviderRequest struct {
	Reference   string
	ServiceID   string
	CustomerRef string
	Amount      int64 // kobo
}

type ProviderResult struct {
	Outcome     Outcome
	ProviderRef string
	Message     string
	Raw         string
}

// Gateway abstracts a bill-payment or gift-card provider. Purchase performs
// the spend; Query re-fetches the outcome by the same reference when the
// original call was ambiguous.
type Gateway interface {
	Purchase(req ProviderRequest) (ProviderResult, error)
	Query(reference string) (ProviderResult, error)
}

// DetailFetcher is implemented by gateways that deliver redeemable details
// (gift card codes) in a follow-up call. Fetching is a best-effort enrichment
// step outside the financial saga.
type DetailFetcher interface {
	FetchDetails(providerRef string) (string, error)
}
