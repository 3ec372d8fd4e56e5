package purchase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// ReloadlyClient talks to the Reloadly gift-card API. Orders deliver the
// redeemable card codes in a follow-up call, exposed via FetchDetails.
type ReloadlyClient struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewReloadlyClient(cfg config.Config) *ReloadlyClient {
	return &ReloadlyClient{
		ClientID:     cfg.ReloadlyClientID,
		ClientSecret: cfg.ReloadlyClientSecret,
		BaseURL:      "https://giftcards.reloadly.com",
		AuthURL:      "https://auth.reloadly.com/oauth/token",
		HTTPClient: &http.Client{
			Timeout: cfg.ProviderTimeout,
		},
	}
}

func (c *ReloadlyClient) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"grant_type":    "client_credentials",
		"audience":      c.BaseURL,
	})

	resp, err := c.HTTPClient.Post(c.AuthURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reloadly auth returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

type reloadlyOrder struct {
	TransactionID int64  `json:"transactionId"`
	Status        string `json:"status"`
}

func (c *ReloadlyClient) Purchase(req ProviderRequest) (ProviderResult, error) {
	token, err := c.token()
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}

	productID, err := strconv.ParseInt(req.ServiceID, 10, 64)
	if err != nil {
		return ProviderResult{Outcome: OutcomeDeclined, Message: "invalid gift card product id"}, nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"productId":        productID,
		"quantity":         1,
		"unitPrice":        float64(req.Amount) / 100,
		"customIdentifier": req.Reference,
		"recipientEmail":   req.CustomerRef,
	})

	httpReq, err := http.NewRequest("POST", c.BaseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	return c.classifyOrderResponse(resp)
}

func (c *ReloadlyClient) Query(reference string) (ProviderResult, error) {
	token, err := c.token()
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}

	url := fmt.Sprintf("%s/reports/transactions?customIdentifier=%s", c.BaseURL, reference)
	httpReq, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// the order never reached Reloadly
		return ProviderResult{Outcome: OutcomeDeclined, Message: "order not found at provider"}, nil
	}

	return c.classifyOrderResponse(resp)
}

// FetchDetails retrieves the redeemable card codes for a completed order.
func (c *ReloadlyClient) FetchDetails(providerRef string) (string, error) {
	token, err := c.token()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/orders/transactions/%s/cards", c.BaseURL, providerRef)
	httpReq, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reloadly card fetch returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *ReloadlyClient) classifyOrderResponse(resp *http.Response) (ProviderResult, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}

	if resp.StatusCode >= 500 {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: fmt.Sprintf("reloadly returned status %d", resp.StatusCode), Raw: string(raw)}, nil
	}
	if resp.StatusCode >= 400 {
		// explicit rejection (bad product, insufficient provider balance)
		var errResp struct {
			Message string `json:"message"`
		}
		json.Unmarshal(raw, &errResp)
		return ProviderResult{Outcome: OutcomeDeclined, Message: errResp.Message, Raw: string(raw)}, nil
	}

	var order reloadlyOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		logger.Warn("Reloadly: unparseable response", logger.Fields{"body": string(raw)})
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: "unparseable provider response", Raw: string(raw)}, nil
	}

	result := ProviderResult{
		ProviderRef: strconv.FormatInt(order.TransactionID, 10),
		Raw:         string(raw),
	}
	switch order.Status {
	case "SUCCESSFUL":
		result.Outcome = OutcomeSuccess
	case "FAILED", "REFUNDED":
		result.Outcome = OutcomeDeclined
	default:
		result.Outcome = OutcomeAmbiguous
	}
	return result, nil
}
