package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// PaystackClient covers the two calls the funding flow needs: initializing a
// hosted checkout and verifying a transaction's final state.
type PaystackClient struct {
	Secret     string
	Channels   []string
	BaseURL    string
	HTTPClient *http.Client
}

func NewPaystackClient(cfg config.Config) *PaystackClient {
	return &PaystackClient{
		Secret:   cfg.PaystackSecret,
		Channels: cfg.PaystackChannels,
		BaseURL:  "https://api.paystack.co",
		HTTPClient: &http.Client{
			Timeout: cfg.ProviderTimeout,
		},
	}
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

func (c *PaystackClient) InitializeTransaction(email string, amount int64, reference, callbackURL string, metadata map[string]interface{}) (*InitializeResult, error) {
	payload := map[string]interface{}{
		"email":        email,
		"amount":       amount,
		"reference":    reference,
		"currency":     "NGN",
		"channels":     c.Channels,
		"callback_url": callbackURL,
		"metadata":     metadata,
	}
	jsonPayload, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", c.BaseURL+"/transaction/initialize", bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach Paystack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("Paystack error", logger.Fields{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
		})
		return nil, fmt.Errorf("paystack returned status %d", resp.StatusCode)
	}

	var paystackResp struct {
		Status  bool             `json:"status"`
		Message string           `json:"message"`
		Data    InitializeResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&paystackResp); err != nil {
		return nil, fmt.Errorf("failed to parse Paystack response: %w", err)
	}
	if !paystackResp.Status {
		return nil, fmt.Errorf("paystack initialization failed: %s", paystackResp.Message)
	}

	return &paystackResp.Data, nil
}

type VerifyResult struct {
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Channel string `json:"channel"`
}

func (c *PaystackClient) VerifyTransaction(reference string) (*VerifyResult, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.BaseURL, reference)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Secret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paystack returned status %d", resp.StatusCode)
	}

	var result struct {
		Status  bool         `json:"status"`
		Message string       `json:"message"`
		Data    VerifyResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Status {
		return nil, fmt.Errorf("paystack verification failed: %s", result.Message)
	}

	return &result.Data, nil
}
