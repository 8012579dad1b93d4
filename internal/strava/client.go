// Package strava is a minimal Strava API v3 client: refresh-token exchange,
// recent running activities, activity streams as track samples, and activity
// description updates.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"runpost/internal/model"
)

// Client talks to the Strava API with a short-lived access token obtained
// from the refresh token on Authenticate.
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	accessToken  string
	client       *http.Client
}

// NewFromEnv builds a client from STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and
// STRAVA_REFRESH_TOKEN. RUNPOST_STRAVA_URL overrides the API endpoint, mainly
// for tests.
func NewFromEnv() (*Client, error) {
	id := os.Getenv("STRAVA_CLIENT_ID")
	secret := os.Getenv("STRAVA_CLIENT_SECRET")
	refresh := os.Getenv("STRAVA_REFRESH_TOKEN")
	if id == "" || secret == "" || refresh == "" {
		return nil, fmt.Errorf("missing STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET or STRAVA_REFRESH_TOKEN")
	}

	baseURL := os.Getenv("RUNPOST_STRAVA_URL")
	tokenURL := "https://www.strava.com/oauth/token"
	if baseURL == "" {
		baseURL = "https://www.strava.com/api/v3"
	} else {
		tokenURL = baseURL + "/oauth/token"
	}

	return &Client{
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		clientID:     id,
		clientSecret: secret,
		refreshToken: refresh,
		client:       &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticate exchanges the refresh token for a fresh access token. The
// refresh token may rotate; the client keeps the latest one.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", c.refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token refresh error %d: %s", resp.StatusCode, string(b))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("strava request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("strava error %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Activity is the subset of Strava's activity record the pipeline consumes.
type Activity struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Distance           float64 `json:"distance"`
	MovingTime         int     `json:"moving_time"`
	ElapsedTime        int     `json:"elapsed_time"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	AverageSpeed       float64 `json:"average_speed"`
	StartDateLocal     string  `json:"start_date_local"`
	SportType          string  `json:"sport_type"`
	LocationCity       string  `json:"location_city"`
}

// StartTime parses the activity's local start time.
func (a Activity) StartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, a.StartDateLocal)
}

// RecentActivities returns the athlete's running activities from the last
// daysBack days, newest first as Strava serves them.
func (c *Client) RecentActivities(ctx context.Context, daysBack, limit int) ([]Activity, error) {
	after := time.Now().AddDate(0, 0, -daysBack).Unix()
	params := url.Values{}
	params.Set("after", fmt.Sprintf("%d", after))
	params.Set("per_page", fmt.Sprintf("%d", limit))

	var activities []Activity
	if err := c.get(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, err
	}

	var runs []Activity
	for _, a := range activities {
		switch strings.ToLower(a.SportType) {
		case "run", "trailrun", "virtualrun":
			runs = append(runs, a)
		}
	}
	return runs, nil
}

type stream struct {
	Data []json.RawMessage `json:"data"`
}

type streamSet struct {
	LatLng   *stream `json:"latlng"`
	Time     *stream `json:"time"`
	Altitude *stream `json:"altitude"`
}

// Samples fetches the activity's latlng/time/altitude streams and converts
// them into track samples anchored at the activity's start time. Null
// coordinate entries are skipped.
func (c *Client) Samples(ctx context.Context, a Activity) ([]model.GeoSample, error) {
	start, err := a.StartTime()
	if err != nil {
		return nil, fmt.Errorf("activity %d start time: %w", a.ID, err)
	}

	params := url.Values{}
	params.Set("keys", "latlng,time,altitude")
	params.Set("key_by_type", "true")

	var streams streamSet
	if err := c.get(ctx, fmt.Sprintf("/activities/%d/streams", a.ID), params, &streams); err != nil {
		return nil, err
	}
	if streams.LatLng == nil || streams.Time == nil {
		return nil, fmt.Errorf("activity %d missing GPS or time stream", a.ID)
	}

	var samples []model.GeoSample
	for i, raw := range streams.LatLng.Data {
		var pair [2]*float64
		if err := json.Unmarshal(raw, &pair); err != nil || pair[0] == nil || pair[1] == nil {
			continue
		}
		if i >= len(streams.Time.Data) {
			break
		}
		var offset float64
		if err := json.Unmarshal(streams.Time.Data[i], &offset); err != nil {
			continue
		}

		s := model.GeoSample{
			Latitude:  *pair[0],
			Longitude: *pair[1],
			Timestamp: start.Add(time.Duration(offset * float64(time.Second))),
		}
		if streams.Altitude != nil && i < len(streams.Altitude.Data) {
			var ele float64
			if err := json.Unmarshal(streams.Altitude.Data[i], &ele); err == nil {
				s.Elevation = &ele
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// TrackItem converts an activity into a pending track item with preloaded
// samples, so remote activities flow through the same grouping path as GPX
// files.
func (c *Client) TrackItem(ctx context.Context, a Activity) (*model.TrackItem, error) {
	start, err := a.StartTime()
	if err != nil {
		return nil, err
	}
	samples, err := c.Samples(ctx, a)
	if err != nil {
		return nil, err
	}
	return &model.TrackItem{
		Source:     fmt.Sprintf("strava:%d", a.ID),
		ObservedAt: start,
		Samples:    samples,
	}, nil
}

// UpdateDescription sets an activity's description, used to post a caption.
func (c *Client) UpdateDescription(ctx context.Context, activityID int64, description string) error {
	body, _ := json.Marshal(map[string]string{"description": description})
	req, err := http.NewRequestWithContext(ctx, "PUT",
		fmt.Sprintf("%s/activities/%d", c.baseURL, activityID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("strava request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("strava error %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
