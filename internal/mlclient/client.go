// Package mlclient provides HTTP clients for the external prediction and
// classification services.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"energybudget/internal/allocation"
	"energybudget/internal/metrics"
)

// Labels the classifier may return.
const (
	LabelEfficient = "HEMAT"
	LabelNormal    = "NORMAL"
	LabelWasteful  = "BOROS"
)

// EstimatorClient asks the prediction service for a period budget.
type EstimatorClient struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewEstimatorClient creates a new prediction service client. m may be nil.
func NewEstimatorClient(baseURL string, httpClient *http.Client, m *metrics.Metrics) *EstimatorClient {
	return &EstimatorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    m,
	}
}

type predictRequest struct {
	MeterIDs    []uint `json:"meterIds"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

type predictResponse struct {
	PredictedCost *decimal.Decimal `json:"predictedCost"`
}

// EstimatePeriodBudget returns the predicted cost of meterIDs over period.
func (c *EstimatorClient) EstimatePeriodBudget(ctx context.Context, meterIDs []uint, period allocation.Period) (decimal.Decimal, error) {
	body := predictRequest{
		MeterIDs:    meterIDs,
		PeriodStart: period.Start.Format(allocation.DateLayout),
		PeriodEnd:   period.End.Format(allocation.DateLayout),
	}
	var result predictResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/predict", "requesting prediction", body, &result)
	if err == nil && result.PredictedCost == nil {
		err = fmt.Errorf("decoding prediction response: missing predictedCost")
	}
	c.metrics.RecordUpstream("estimator", err)
	if err != nil {
		return decimal.Zero, err
	}
	return result.PredictedCost.Round(2), nil
}

// ClassifierClient asks the classification service to label a budget's
// spending.
type ClassifierClient struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClassifierClient creates a new classification service client. m may be nil.
func NewClassifierClient(baseURL string, httpClient *http.Client, m *metrics.Metrics) *ClassifierClient {
	return &ClassifierClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    m,
	}
}

type classifyRequest struct {
	BudgetID              uint            `json:"budgetId"`
	AllocatedBudget       decimal.Decimal `json:"allocatedBudget"`
	TotalRealization      decimal.Decimal `json:"totalRealization"`
	RealizationPercentage *float64        `json:"realizationPercentage"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify returns the label and confidence for a budget's realization.
func (c *ClassifierClient) Classify(ctx context.Context, budgetID uint, allocated, realized decimal.Decimal, percentage *float64) (string, float64, error) {
	body := classifyRequest{
		BudgetID:              budgetID,
		AllocatedBudget:       allocated,
		TotalRealization:      realized,
		RealizationPercentage: percentage,
	}
	var result classifyResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/classify", "requesting classification", body, &result)
	if err == nil {
		switch result.Label {
		case LabelEfficient, LabelNormal, LabelWasteful:
		default:
			err = fmt.Errorf("decoding classification response: unknown label %q", result.Label)
		}
	}
	c.metrics.RecordUpstream("classifier", err)
	if err != nil {
		return "", 0, err
	}
	return result.Label, result.Confidence, nil
}

func postJSON(ctx context.Context, client *http.Client, url, action string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", action, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
