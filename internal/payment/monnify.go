package payment

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/billhaven/billhaven-backend/pkg/config"
)

// MonnifyClient provisions reserved virtual bank accounts whose inbound
// transfers are announced on the Monnify webhook.
type MonnifyClient struct {
	APIKey       string
	Secret       string
	ContractCode string
	BaseURL      string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMonnifyClient(cfg config.Config) *MonnifyClient {
	return &MonnifyClient{
		APIKey:       cfg.MonnifyAPIKey,
		Secret:       cfg.MonnifySecret,
		ContractCode: cfg.MonnifyContractCode,
		BaseURL:      "https://api.monnify.com",
		HTTPClient: &http.Client{
			Timeout: cfg.ProviderTimeout,
		},
	}
}

func (c *MonnifyClient) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequest("POST", c.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.APIKey + ":" + c.Secret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("monnify auth returned status %d", resp.StatusCode)
	}

	var authResp struct {
		ResponseBody struct {
			AccessToken string `json:"accessToken"`
			ExpiresIn   int64  `json:"expiresIn"`
		} `json:"responseBody"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", err
	}

	c.accessToken = authResp.ResponseBody.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(authResp.ResponseBody.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

type ReservedAccount struct {
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
}

// CreateReservedAccount reserves a dedicated virtual account for the user.
func (c *MonnifyClient) CreateReservedAccount(userID, name, email string) (*ReservedAccount, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"accountReference":     userID,
		"accountName":          name,
		"currencyCode":         "NGN",
		"contractCode":         c.ContractCode,
		"customerEmail":        email,
		"customerName":         name,
		"getAllAvailableBanks": false,
		"preferredBanks":       []string{"035"},
	})

	req, err := http.NewRequest("POST", c.BaseURL+"/api/v2/bank-transfer/reserved-accounts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monnify returned status %d", resp.StatusCode)
	}

	var accountResp struct {
		RequestSuccessful bool `json:"requestSuccessful"`
		ResponseBody      struct {
			Accounts []ReservedAccount `json:"accounts"`
		} `json:"responseBody"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accountResp); err != nil {
		return nil, err
	}
	if !accountResp.RequestSuccessful || len(accountResp.ResponseBody.Accounts) == 0 {
		return nil, fmt.Errorf("monnify reserved account creation failed")
	}

	return &accountResp.ResponseBody.Accounts[0], nil
}
