package purchase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/billhaven/billhaven-backend/pkg/config"
	"github.com/billhaven/billhaven-backend/pkg/logger"
)

// VTPassClient talks to the VTPass bill-payment API (airtime, data, TV,
// electricity, insurance). Responses that cannot be classified as a definite
// success or decline come back ambiguous for the reconciler.
type VTPassClient struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

func NewVTPassClient(cfg config.Config) *VTPassClient {
	return &VTPassClient{
		APIKey:    cfg.VTPassAPIKey,
		SecretKey: cfg.VTPassSecret,
		BaseURL:   "https://vtpass.com/api",
		HTTPClient: &http.Client{
			Timeout: cfg.ProviderTimeout,
		},
	}
}

type vtpassResponse struct {
	Code                string `json:"code"`
	ResponseDescription string `json:"response_description"`
	Content             struct {
		Transactions struct {
			Status        string `json:"status"`
			TransactionID string `json:"transactionId"`
		} `json:"transactions"`
	} `json:"content"`
}

func (c *VTPassClient) Purchase(req ProviderRequest) (ProviderResult, error) {
	payload := map[string]interface{}{
		"request_id":  req.Reference,
		"serviceID":   req.ServiceID,
		"billersCode": req.CustomerRef,
		"phone":       req.CustomerRef,
		"amount":      req.Amount / 100, // VTPass bills in naira
	}
	return c.call("/pay", payload)
}

func (c *VTPassClient) Query(reference string) (ProviderResult, error) {
	payload := map[string]interface{}{
		"request_id": reference,
	}
	return c.call("/requery", payload)
}

func (c *VTPassClient) call(path string, payload map[string]interface{}) (ProviderResult, error) {
	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequest("POST", c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	httpReq.Header.Set("api-key", c.APIKey)
	httpReq.Header.Set("secret-key", c.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		// timeout or network error: the provider may still have processed it
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: fmt.Sprintf("vtpass returned status %d", resp.StatusCode)}, nil
	}

	var vtResp vtpassResponse
	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: err.Error()}, nil
	}
	if err := json.Unmarshal(raw.Bytes(), &vtResp); err != nil {
		logger.Warn("VTPass: unparseable response", logger.Fields{"body": raw.String()})
		return ProviderResult{Outcome: OutcomeAmbiguous, Message: "unparseable provider response", Raw: raw.String()}, nil
	}

	result := ProviderResult{
		ProviderRef: vtResp.Content.Transactions.TransactionID,
		Message:     vtResp.ResponseDescription,
		Raw:         raw.String(),
	}
	result.Outcome = classifyVTPassCode(vtResp.Code, vtResp.Content.Transactions.Status)
	return result, nil
}

// vtpassDeclineCodes are explicit terminal declines; anything else that is
// not a confirmed success stays ambiguous.
var vtpassDeclineCodes = map[string]bool{
	"010": true, // variation does not exist
	"011": true, // invalid arguments
	"012": true, // product does not exist
	"013": true, // below minimum amount
	"016": true, // transaction failed
	"017": true, // above maximum amount
	"018": true, // low upstream wallet balance
}

func classifyVTPassCode(code, txStatus string) Outcome {
	if code == "000" {
		if txStatus == "failed" {
			return OutcomeDeclined
		}
		return OutcomeSuccess
	}
	if vtpassDeclineCodes[code] {
		return OutcomeDeclined
	}
	return OutcomeAmbiguous
}
