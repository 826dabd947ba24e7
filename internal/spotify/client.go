// Thin Spotify Web API client used by the proxy controllers. It never manages
// credentials itself: every call takes the bearer token the access gate
// attached to the request.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// APIError carries the upstream status so the proxy layer can forward it
// instead of flattening everything to 500.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

// Client calls the Spotify Web API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		HTTPClient: http.DefaultClient,
	}
}

// PlayRequest starts or resumes playback of the given track URIs, optionally
// on a specific device and from a position within the track.
type PlayRequest struct {
	URIs       []string `json:"uris,omitempty"`
	DeviceID   string   `json:"-"`
	PositionMS int      `json:"position_ms,omitempty"`
}

// Search runs a catalog search. The response body is passed through to the
// caller untouched.
func (c *Client) Search(ctx context.Context, accessToken, term, typ string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("q", term)
	query.Set("type", typ)

	var result json.RawMessage
	if err := c.do(ctx, accessToken, http.MethodGet, "/search?"+query.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Play starts playback on the user's active (or given) device.
func (c *Client) Play(ctx context.Context, accessToken string, req PlayRequest) error {
	endpoint := "/me/player/play"
	if req.DeviceID != "" {
		endpoint += "?device_id=" + url.QueryEscape(req.DeviceID)
	}
	return c.do(ctx, accessToken, http.MethodPut, endpoint, req, nil)
}

// TransferPlayback moves playback to the given device, used to hand playback
// to the browser SDK's device once it registers.
func (c *Client) TransferPlayback(ctx context.Context, accessToken, deviceID string) error {
	body := struct {
		DeviceIDs []string `json:"device_ids"`
		Play      bool     `json:"play"`
	}{
		DeviceIDs: []string{deviceID},
		Play:      true,
	}
	return c.do(ctx, accessToken, http.MethodPut, "/me/player", body, nil)
}

// AudioAnalysis fetches the beat/bar/section analysis driving the
// visualizations.
func (c *Client) AudioAnalysis(ctx context.Context, accessToken, trackID string) (json.RawMessage, error) {
	var result json.RawMessage
	endpoint := "/audio-analysis/" + url.PathEscape(trackID)
	if err := c.do(ctx, accessToken, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, endpoint string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "failed to process your request"}
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error.Message != "" {
			apiErr.Message = errBody.Error.Message
		}
		log.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("Spotify API call failed")
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
