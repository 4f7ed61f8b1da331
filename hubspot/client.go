package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/smartsetter/ssot_backend/utils"
)

const defaultBaseURL = "https://api.hubapi.com"

const contactCompanyAssociationID = 279

var conflictIDPattern = regexp.MustCompile(`\d+`)

// Client is a minimal HubSpot CRM v3 client covering the objects this service
// propagates: contacts, companies, and their association.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient() *Client {
	baseURL := os.Getenv("HUBSPOT_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      os.Getenv("HUBSPOT_ACCESS_TOKEN"),
	}
}

type objectResponse struct {
	ID string `json:"id"`
}

// CreateContact creates a contact and returns its HubSpot id. A 409 conflict
// means the email already exists upstream; the existing record is updated
// instead, with the phone property dropped so a verified number entered by an
// operator is never overwritten.
func (c *Client) CreateContact(ctx context.Context, properties map[string]any) (string, error) {
	id, status, body, err := c.createObject(ctx, "contacts", properties)
	if err == nil {
		return id, nil
	}
	if status != http.StatusConflict {
		return "", err
	}

	existingID := conflictIDPattern.FindString(body)
	if existingID == "" {
		return "", fmt.Errorf("%w: conflict without existing id", utils.ErrorExternalService)
	}
	retryProps := make(map[string]any, len(properties))
	for k, v := range properties {
		if k == "phone" {
			continue
		}
		retryProps[k] = v
	}
	if err := c.UpdateContact(ctx, existingID, retryProps); err != nil {
		return "", err
	}
	return existingID, nil
}

func (c *Client) UpdateContact(ctx context.Context, id string, properties map[string]any) error {
	return c.updateObject(ctx, "contacts", id, properties)
}

func (c *Client) CreateCompany(ctx context.Context, properties map[string]any) (string, error) {
	id, _, _, err := c.createObject(ctx, "companies", properties)
	return id, err
}

func (c *Client) UpdateCompany(ctx context.Context, id string, properties map[string]any) error {
	return c.updateObject(ctx, "companies", id, properties)
}

// AssociateContactToCompany links a contact to its company with the standard
// contact-to-company association type.
func (c *Client) AssociateContactToCompany(ctx context.Context, contactID, companyID string) error {
	path := fmt.Sprintf("/crm/v4/objects/contacts/%s/associations/companies/%s", contactID, companyID)
	payload := []map[string]any{
		{
			"associationCategory": "HUBSPOT_DEFINED",
			"associationTypeId":   contactCompanyAssociationID,
		},
	}
	_, _, err := c.do(ctx, http.MethodPut, path, payload)
	return err
}

func (c *Client) createObject(ctx context.Context, objectType string, properties map[string]any) (string, int, string, error) {
	body, status, err := c.do(ctx, http.MethodPost,
		"/crm/v3/objects/"+objectType, map[string]any{"properties": properties})
	if err != nil {
		return "", status, body, err
	}
	var resp objectResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", status, body, err
	}
	return resp.ID, status, body, nil
}

func (c *Client) updateObject(ctx context.Context, objectType, id string, properties map[string]any) error {
	_, _, err := c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, id),
		map[string]any{"properties": properties})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (string, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", utils.ErrorExternalService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}

	if resp.StatusCode >= 400 {
		return string(raw), resp.StatusCode,
			fmt.Errorf("%w: hubspot %s %s returned %d", utils.ErrorExternalService, method, path, resp.StatusCode)
	}
	return string(raw), resp.StatusCode, nil
}
